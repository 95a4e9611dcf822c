package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/okian/frameevents/internal/adapters/mq/worker"
)

// ManifestName is the object written next to the event stacks.
const ManifestName = "events.json"

type manifestParams struct {
	Threshold float64 `json:"threshold"`
	Before    int     `json:"before"`
	After     int     `json:"after"`
}

type manifestEvent struct {
	Name            string `json:"name"`
	StartPosition   int    `json:"start_position"`
	EndPosition     int    `json:"end_position"`
	StartIdentifier string `json:"start_identifier"`
	EndOrderKey     int    `json:"end_order_key"`
	Frames          int    `json:"frames"`
	Bytes           int64  `json:"bytes"`
}

type manifest struct {
	RunID    string          `json:"run_id"`
	Status   string          `json:"status"`
	Started  time.Time       `json:"started"`
	Duration string          `json:"duration"`
	Params   manifestParams  `json:"params"`
	Frames   int             `json:"frames"`
	Issues   []string        `json:"issues,omitempty"`
	Events   []manifestEvent `json:"events"`
}

func newManifest(r *Report, status string) manifest {
	m := manifest{
		RunID:    r.RunID,
		Status:   status,
		Started:  r.Started.UTC(),
		Duration: r.Duration.String(),
		Params: manifestParams{
			Threshold: r.Params.Threshold,
			Before:    r.Params.Before,
			After:     r.Params.After,
		},
		Frames: r.Frames,
		Events: make([]manifestEvent, 0, len(r.Written)),
	}
	for _, issue := range r.Issues {
		m.Issues = append(m.Issues, issue.Error())
	}
	for _, w := range r.Written {
		m.Events = append(m.Events, manifestEvent{
			Name:            w.Name,
			StartPosition:   w.Window.StartPosition,
			EndPosition:     w.Window.EndPosition,
			StartIdentifier: w.Window.StartIdentifier,
			EndOrderKey:     w.Window.EndOrderKey,
			Frames:          w.Frames,
			Bytes:           w.Bytes,
		})
	}
	return m
}

func writeManifest(ctx context.Context, sink worker.Sink, m manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := sink.Put(ctx, ManifestName, bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}
