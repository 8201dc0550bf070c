package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// RequestRecord captures one model request for persistence and audit.
type RequestRecord struct {
	Provider     string
	Model        string
	Purpose      string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	CostUSD      float64
	Success      bool
	ErrorMessage string
	RequestBody  string
	ResponseBody string
}

// RequestRecorder persists request records. Implementations must be safe
// for concurrent use; a recording failure must not fail the request itself.
type RequestRecorder interface {
	RecordRequest(ctx context.Context, rec RequestRecord) error
}

// LoggingProvider is a decorator that records every LLM request through a
// RequestRecorder, tagging each record with the purpose from the context.
type LoggingProvider struct {
	inner    Provider
	recorder RequestRecorder
	log      *logrus.Entry
}

// WithLogging wraps a Provider with request recording. A nil recorder
// disables persistence but keeps log output.
func WithLogging(p Provider, rec RequestRecorder) Provider {
	return &LoggingProvider{
		inner:    p,
		recorder: rec,
		log:      logrus.WithField("component", "llm"),
	}
}

func (l *LoggingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	purpose := PurposeFrom(ctx)

	resp, err := l.inner.Generate(ctx, req)

	rec := RequestRecord{
		Provider:    l.inner.ModelID(),
		Model:       l.inner.ModelID(),
		Purpose:     purpose,
		LatencyMs:   time.Since(start).Milliseconds(),
		Success:     err == nil,
		RequestBody: serializeRequest(req),
	}

	if resp != nil {
		rec.Model = resp.Model
		rec.InputTokens = resp.Usage.InputTokens
		rec.OutputTokens = resp.Usage.OutputTokens
		if cost := LookupCost(resp.Model); cost != nil {
			rec.CostUSD = cost.Cost(resp.Usage.InputTokens, resp.Usage.OutputTokens)
		}
		rec.ResponseBody = string(resp.Content)
	}

	if err != nil {
		rec.ErrorMessage = err.Error()
	}

	fields := logrus.Fields{
		"purpose":    purpose,
		"model":      rec.Model,
		"latency_ms": rec.LatencyMs,
		"tokens_in":  rec.InputTokens,
		"tokens_out": rec.OutputTokens,
	}
	if err != nil {
		l.log.WithFields(fields).WithError(err).Warn("llm request failed")
	} else {
		l.log.WithFields(fields).Debug("llm request completed")
	}

	// Record the request but don't fail it if recording fails.
	if l.recorder != nil {
		if recErr := l.recorder.RecordRequest(ctx, rec); recErr != nil {
			l.log.WithError(recErr).Warn("failed to record llm request")
		}
	}

	return resp, err
}

func (l *LoggingProvider) ModelID() string {
	return l.inner.ModelID()
}

// serializeRequest builds a readable representation of the LLM request.
func serializeRequest(req Request) string {
	var b strings.Builder

	if req.System != "" {
		b.WriteString("[system]\n")
		b.WriteString(req.System)
		b.WriteString("\n\n")
	}

	for _, m := range req.Messages {
		b.WriteString(fmt.Sprintf("[%s]\n", m.Role))
		b.WriteString(m.Content)
		b.WriteString("\n\n")
	}

	if req.Schema != nil {
		schemaDef, err := json.Marshal(req.Schema.Definition)
		if err == nil {
			b.WriteString(fmt.Sprintf("[schema: %s]\n", req.Schema.Name))
			b.WriteString(string(schemaDef))
			b.WriteString("\n")
		}
	}

	return b.String()
}
