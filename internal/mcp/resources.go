package mcp

import (
	"context"
	"encoding/json"

	"github.com/claude/weekgrid/internal/week"
	"github.com/mark3labs/mcp-go/mcp"
)

func (h *handlers) currentWeek(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uid := UserIDFromContext(ctx)

	p, err := h.programFor(ctx, uid)
	if err != nil {
		return nil, err
	}
	today := h.now()
	n := week.WeekNumberForDate(today, p.StartDate)
	rec, err := h.loadWeek(ctx, uid, n, p)
	if err != nil {
		return nil, err
	}

	offset := week.DayOffsetForDate(today, p.StartDate)
	data, err := json.Marshal(map[string]any{
		"date":  today.Format(week.DateLayout),
		"today": week.DayIDForOffset(offset),
		"week":  rec,
	})
	if err != nil {
		return nil, err
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (h *handlers) latestMeasurements(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	latest, err := h.ds.LatestMeasurements(ctx, UserIDFromContext(ctx))
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(latest)
	if err != nil {
		return nil, err
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
