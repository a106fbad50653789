package main

import (
	"context"
	"fmt"

	"github.com/interviewkit/diffsync/internal/config"
	"github.com/interviewkit/diffsync/internal/journal"
	"github.com/interviewkit/diffsync/internal/logging"
	"github.com/interviewkit/diffsync/internal/sink"
)

// outputs is the set of sinks a watch session dispatches to.
type outputs struct {
	sink    sink.Sink
	journal *journal.Journal
	names   []string
}

func (o *outputs) Close() error {
	if o.journal != nil {
		return o.journal.Close()
	}
	return nil
}

// buildOutputs creates every sink named in cfg. extra sinks (the dashboard)
// are appended after the configured ones.
func buildOutputs(ctx context.Context, cfg *config.Config, out *logging.Output, extra ...sink.Sink) (*outputs, error) {
	o := &outputs{}
	var sinks []sink.Sink

	for _, name := range cfg.Sinks {
		var s sink.Sink
		switch name {
		case config.SinkLog:
			s = sink.NewLog(out.Logger("sink"), cfg.Log.Verbose)

		case config.SinkS3:
			s3, err := sink.NewS3(ctx, sink.S3Config{
				Bucket:          cfg.S3.Bucket,
				Region:          cfg.S3.Region,
				Endpoint:        cfg.S3.Endpoint,
				Prefix:          cfg.S3.Prefix,
				AccessKeyID:     cfg.S3.AccessKeyID,
				SecretAccessKey: cfg.S3.SecretAccessKey,
				Logger:          out.Logger("s3"),
			})
			if err != nil {
				_ = o.Close()
				return nil, fmt.Errorf("failed to create s3 sink: %w", err)
			}
			s = s3

		case config.SinkHTTP:
			h, err := sink.NewHTTP(sink.HTTPConfig{
				URL:     cfg.HTTP.URL,
				Timeout: cfg.HTTP.Timeout,
				Headers: cfg.HTTP.Headers,
			})
			if err != nil {
				_ = o.Close()
				return nil, fmt.Errorf("failed to create http sink: %w", err)
			}
			s = h

		case config.SinkJournal:
			j, err := openJournal(ctx, cfg.Journal.Path)
			if err != nil {
				_ = o.Close()
				return nil, err
			}
			o.journal = j
			s = j

		default:
			_ = o.Close()
			return nil, fmt.Errorf("unknown sink %q", name)
		}

		sinks = append(sinks, sink.Named(name, s))
		o.names = append(o.names, name)
	}

	sinks = append(sinks, extra...)
	if len(sinks) == 0 {
		// nothing configured: batches are still built so the tracker converges
		sinks = append(sinks, sink.Discard)
	}

	s, err := sink.NewMulti(sinks...)
	if err != nil {
		_ = o.Close()
		return nil, err
	}
	o.sink = s
	return o, nil
}

// openJournal opens the journal database and makes sure its schema exists.
func openJournal(ctx context.Context, path string) (*journal.Journal, error) {
	j, err := journal.Open(path)
	if err != nil {
		return nil, err
	}
	if err := j.InitSchema(ctx); err != nil {
		_ = j.Close()
		return nil, err
	}
	return j, nil
}
