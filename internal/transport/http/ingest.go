package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"axle-monitor/core/internal/auth"
	"axle-monitor/core/internal/domain"
)

// handleIngest accepts one frame or an array of frames. The whole request
// is validated before any frame is dispatched.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	id, _ := auth.FromContext(r.Context())
	frames, err := decodeFrames(body, id)
	if err != nil {
		respondErr(w, err)
		return
	}

	now := s.now()
	for _, f := range frames {
		f.ReceivedAt = now
		s.deps.Dispatcher.Dispatch(f)
	}

	s.logger.Debug("frames accepted", zap.Int("count", len(frames)), zap.String("device", id.DeviceKey))
	respondJSON(w, http.StatusAccepted, map[string]int{"accepted": len(frames)})
}

func decodeFrames(body []byte, id auth.Identity) ([]*domain.RawFrame, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", domain.ErrInvalidInput)
	}

	var items []json.RawMessage
	if body[0] == '[' {
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("%w: invalid JSON array: %v", domain.ErrInvalidInput, err)
		}
		if len(items) == 0 {
			return nil, fmt.Errorf("%w: empty frame array", domain.ErrInvalidInput)
		}
	} else {
		items = []json.RawMessage{body}
	}

	frames := make([]*domain.RawFrame, 0, len(items))
	for i, item := range items {
		var f domain.RawFrame
		if err := json.Unmarshal(item, &f); err != nil {
			return nil, fmt.Errorf("%w: frame %d: %v", domain.ErrInvalidInput, i, err)
		}
		if err := bindIdentity(&f, id); err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		f.RawPayload = append([]byte(nil), item...)
		frames = append(frames, &f)
	}
	return frames, nil
}

// bindIdentity fills an empty frame key from a device-bound API key and
// rejects frames claiming another device. Static keys may submit for any
// device but must name it.
func bindIdentity(f *domain.RawFrame, id auth.Identity) error {
	if !id.Static && id.DeviceKey != "" {
		if f.DeviceKey == "" {
			f.DeviceKey = id.DeviceKey
		} else if f.DeviceKey != id.DeviceKey {
			return fmt.Errorf("%w: key %q does not match the API key's device", domain.ErrInvalidInput, f.DeviceKey)
		}
	}
	if f.DeviceKey == "" {
		return fmt.Errorf("%w: key is required", domain.ErrInvalidInput)
	}
	return nil
}
