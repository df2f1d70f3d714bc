// Package stream serves the live counting websocket: clients send encoded
// camera frames and receive the count, phase label and joint positions
// for each frame.
package stream

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"gocv.io/x/gocv"
)

// ErrMalformedMessage is returned for payloads that do not decode to an image.
var ErrMalformedMessage = errors.New("malformed frame message")

// DecodeFrame decodes a base64 image payload, optionally prefixed with a
// data URI header such as "data:image/jpeg;base64,". The caller must close
// the returned Mat.
func DecodeFrame(payload string) (gocv.Mat, error) {
	data := strings.TrimSpace(payload)
	if strings.HasPrefix(data, "data:") {
		comma := strings.IndexByte(data, ',')
		if comma < 0 {
			return gocv.NewMat(), fmt.Errorf("%w: data URI without payload", ErrMalformedMessage)
		}
		data = data[comma+1:]
	}
	if data == "" {
		return gocv.NewMat(), fmt.Errorf("%w: empty payload", ErrMalformedMessage)
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(data)
		if err != nil {
			return gocv.NewMat(), fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
	}

	return DecodeImage(raw)
}

// DecodeImage decodes raw encoded image bytes (JPEG, PNG, WebP).
func DecodeImage(raw []byte) (gocv.Mat, error) {
	if len(raw) == 0 {
		return gocv.NewMat(), fmt.Errorf("%w: empty image", ErrMalformedMessage)
	}

	mat, err := gocv.IMDecode(raw, gocv.IMReadColor)
	if err != nil {
		mat.Close()
		return gocv.NewMat(), fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if mat.Empty() {
		mat.Close()
		return gocv.NewMat(), fmt.Errorf("%w: undecodable image", ErrMalformedMessage)
	}
	return mat, nil
}
