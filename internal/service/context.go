package service

import (
	"context"
	"fmt"
	"log"

	"github.com/Shrinet82/ai-sre-agent/internal/model"
)

// Bounds on assembled evidence. The ledger stores at most maxLogExcerpt
// bytes of logs and the advisor never sees more than maxRecentEvents events.
const (
	maxLogExcerpt   = 2000
	maxRecentEvents = 10
	similarTopK     = 3
	logTailLines    = 50
)

// ResourceReader is the read-only slice of the cluster client the assembler
// needs.
type ResourceReader interface {
	GetPodEvents(ctx context.Context, namespace, pod string, limit int) ([]string, error)
	CheckNodeHealth(ctx context.Context, name string) (string, error)
	PodLogs(ctx context.Context, namespace, pod string, tailLines int64) (string, error)
}

// LogStore serves recent log lines for a pod (Loki).
type LogStore interface {
	IsConfigured() bool
	QueryPodLogs(ctx context.Context, namespace, pod string) (string, error)
}

// SimilaritySearcher returns the top-k past incidents nearest to a summary
// text.
type SimilaritySearcher interface {
	TopKSimilar(ctx context.Context, text string, k int) ([]model.SimilarIncident, error)
}

// ContextAssembler gathers the evidence bundle for one incident. Every
// source is best effort: a failed fetch is logged and its field stays empty.
type ContextAssembler struct {
	reader  ResourceReader
	logs    LogStore
	similar SimilaritySearcher
}

func NewContextAssembler(reader ResourceReader, logs LogStore, similar SimilaritySearcher) *ContextAssembler {
	return &ContextAssembler{reader: reader, logs: logs, similar: similar}
}

func (a *ContextAssembler) Assemble(ctx context.Context, req model.IncidentRequest) model.Context {
	out := model.Context{Request: req}

	if req.Target != "" && req.Namespace != "" {
		events, err := a.reader.GetPodEvents(ctx, req.Namespace, req.Target, maxRecentEvents)
		if err != nil {
			log.Printf("context: pod events unavailable for %s/%s: %v", req.Namespace, req.Target, err)
		} else {
			out.RecentEvents = events
		}
		out.LogExcerpt = a.logExcerpt(ctx, req.Namespace, req.Target)
	} else if req.Target != "" {
		// Target with no namespace means a node-scoped alert.
		state, err := a.reader.CheckNodeHealth(ctx, req.Target)
		if err != nil {
			log.Printf("context: node health unavailable for %s: %v", req.Target, err)
		} else {
			out.ResourceState = state
		}
	}

	if a.similar != nil {
		similar, err := a.similar.TopKSimilar(ctx, IncidentSummaryText(req), similarTopK)
		if err != nil {
			log.Printf("context: similarity search failed, continuing without: %v", err)
		} else {
			out.SimilarIncidents = similar
		}
	}

	return out
}

func (a *ContextAssembler) logExcerpt(ctx context.Context, namespace, pod string) string {
	var text string
	var err error
	if a.logs != nil && a.logs.IsConfigured() {
		text, err = a.logs.QueryPodLogs(ctx, namespace, pod)
		if err != nil {
			log.Printf("context: loki query failed for %s/%s, falling back to pod logs: %v", namespace, pod, err)
		}
	}
	if text == "" {
		text, err = a.reader.PodLogs(ctx, namespace, pod, logTailLines)
		if err != nil {
			log.Printf("context: pod logs unavailable for %s/%s: %v", namespace, pod, err)
			return ""
		}
	}
	return TruncateTail(text, maxLogExcerpt)
}

// IncidentSummaryText is the canonical one-line summary used for similarity
// search and embedding storage.
func IncidentSummaryText(req model.IncidentRequest) string {
	return fmt.Sprintf("%s [%s] %s/%s: %s",
		req.AlertName, req.Severity, req.Namespace, req.Target, req.Description)
}

// TruncateTail keeps the last max bytes of s. Log excerpts keep the tail
// because the newest lines carry the failure.
func TruncateTail(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
