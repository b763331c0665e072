// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/deep-researcher/internal/llm"
	"github.com/pdiddy/deep-researcher/pkg/types"
)

// claimEntry is one claim as returned by the model. The original prompt
// format used "claim" for the statement, so both keys are accepted.
type claimEntry struct {
	Statement  string `json:"statement"`
	Claim      string `json:"claim"`
	Importance string `json:"importance"`
}

func (e claimEntry) statement() string {
	if s := strings.TrimSpace(e.Statement); s != "" {
		return s
	}
	return strings.TrimSpace(e.Claim)
}

// claimList is the structured response of the extraction call. It accepts a
// bare array or an object with a "claims" array. Entries stay raw so each is
// decoded on its own.
type claimList struct {
	Claims []json.RawMessage `json:"claims"`
	found  bool
}

func (l *claimList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		l.found = true
		return json.Unmarshal(data, &l.Claims)
	}
	var obj struct {
		Claims *[]json.RawMessage `json:"claims"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if obj.Claims != nil {
		l.found = true
		l.Claims = *obj.Claims
	}
	return nil
}

// Validate requires the claim list itself; individual entries are filtered
// later so one bad entry does not discard the others.
func (l *claimList) Validate() error {
	if !l.found {
		return errors.New(`response has no "claims" list`)
	}
	return nil
}

// extractClaims derives checkable claims from the research narrative. It never
// fails the run: on any problem it returns no claims and records a
// claim-extraction warning.
func (r *runner) extractClaims(ctx context.Context, in types.ResearchState) (Delta, error) {
	d := Delta{Stage: types.StageExtract, Claims: []types.Claim{}}
	if in.Degraded() {
		r.log.Info("skipping claim extraction: insufficient source material")
		return d, nil
	}

	prompt, err := render(claimsPromptTmpl, struct {
		Research string
		Min, Max int
	}{in.ResearchOutput, r.cfg.MinClaims, r.cfg.MaxClaims})
	if err != nil {
		return Delta{}, err
	}

	var list claimList
	err = r.completeJSON(ctx, string(types.StageExtract), prompt, func(text string) error {
		var l claimList
		if err := llm.DecodeJSON(text, &l); err != nil {
			return err
		}
		list = l
		return nil
	})
	if err != nil {
		failure := fmt.Errorf("%w: %w", ErrClaimExtractionFailed, err)
		r.log.Warn("claim extraction failed", zap.Error(failure))
		d.Warnings = append(d.Warnings, failure.Error())
		return d, nil
	}

	claims, failure := r.filterClaims(list.Claims)
	if failure != nil {
		r.log.Warn("claim extraction failed", zap.Error(failure))
		d.Warnings = append(d.Warnings, failure.Error())
		return d, nil
	}
	d.Claims = claims
	return d, nil
}

// filterClaims decodes each entry, drops malformed ones and applies the count policy: no
// claims at all, or between MinClaims and MaxClaims.
func (r *runner) filterClaims(entries []json.RawMessage) ([]types.Claim, error) {
	claims := make([]types.Claim, 0, len(entries))
	seen := make(map[string]bool)
	for i, raw := range entries {
		var e claimEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			r.log.Warn("dropping malformed claim entry", zap.Int("index", i), zap.Error(err))
			continue
		}
		stmt := e.statement()
		if stmt == "" {
			r.log.Warn("dropping claim without statement", zap.Int("index", i))
			continue
		}
		imp, ok := types.ParseImportance(e.Importance)
		if !ok {
			r.log.Warn("dropping claim with invalid importance",
				zap.Int("index", i), zap.String("importance", e.Importance))
			continue
		}
		key := strings.ToLower(stmt)
		if seen[key] {
			continue
		}
		seen[key] = true
		claims = append(claims, types.Claim{Statement: stmt, Importance: imp})
	}

	if len(claims) == 0 {
		return nil, fmt.Errorf("%w: no valid claims among %d entries", ErrClaimExtractionFailed, len(entries))
	}
	if len(claims) < r.cfg.MinClaims {
		return nil, fmt.Errorf("%w: only %d valid claim(s), at least %d required",
			ErrClaimExtractionFailed, len(claims), r.cfg.MinClaims)
	}
	if len(claims) > r.cfg.MaxClaims {
		claims = claims[:r.cfg.MaxClaims]
	}
	return claims, nil
}
