package handler

import (
	"net/http"
	"strings"

	"meridian/internal/flags"
	"meridian/internal/transition"
	id "meridian/pkg/domain"
	dErrors "meridian/pkg/domain-errors"
	pstrings "meridian/pkg/platform/strings"
	"meridian/pkg/requestcontext"
)

// declaredTimezone resolves the client's declared zone: the query
// parameter wins over the X-Timezone header the metadata middleware
// captured. Empty means "use the saved profile preference".
func declaredTimezone(r *http.Request) string {
	if tz := strings.TrimSpace(r.URL.Query().Get("timezone")); tz != "" {
		return tz
	}
	return requestcontext.Timezone(r.Context())
}

// sessionQueryFromRequest builds the engine query from URL parameters.
// The authenticated user comes from context, never from the URL.
func sessionQueryFromRequest(r *http.Request) (transition.Query, error) {
	ctx := r.Context()

	userID := requestcontext.UserID(ctx)
	if userID.IsZero() {
		return transition.Query{}, dErrors.New(dErrors.CodeInternal, "authentication context error")
	}

	params := r.URL.Query()
	order, err := transition.ParseSortOrder(params.Get("order"))
	if err != nil {
		return transition.Query{}, err
	}

	// Subjects are hostnames; validate each and compare case-insensitively.
	var subjects []string
	if raw := params.Get("subjects"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			subject, err := id.ParseSubjectID(part)
			if err != nil {
				return transition.Query{}, err
			}
			subjects = append(subjects, subject.String())
		}
		subjects = pstrings.DedupeAndTrimLower(subjects)
	}

	query := transition.Query{
		UserID:    userID,
		StartDate: params.Get("start"),
		EndDate:   params.Get("end"),
		Timezone:  declaredTimezone(r),
		Order:     order,
		Subjects:  subjects,
	}
	if err := query.Validate(); err != nil {
		return transition.Query{}, err
	}
	return query, nil
}

// updateConfigRequest is the PATCH /v1/transition/config body.
type updateConfigRequest struct {
	PreferUTC        *bool `json:"prefer_utc,omitempty"`
	FallbackToLegacy *bool `json:"fallback_to_legacy,omitempty"`
}

// Validate requires at least one field so a no-op PATCH is reported to
// the caller instead of silently succeeding.
func (r *updateConfigRequest) Validate() error {
	if r.PreferUTC == nil && r.FallbackToLegacy == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "at least one config field is required")
	}
	return nil
}

func (r *updateConfigRequest) update() flags.ConfigUpdate {
	return flags.ConfigUpdate{
		PreferUTC:        r.PreferUTC,
		FallbackToLegacy: r.FallbackToLegacy,
	}
}

// maxReasonLength bounds the free-form reason recorded in the audit
// trail.
const maxReasonLength = 512

// emergencyDisableRequest is the POST /v1/transition/emergency-disable
// body.
type emergencyDisableRequest struct {
	Reason string `json:"reason"`
}

func (r *emergencyDisableRequest) Validate() error {
	r.Reason = strings.TrimSpace(r.Reason)
	if r.Reason == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "a reason is required for the audit trail")
	}
	if len(r.Reason) > maxReasonLength {
		return dErrors.New(dErrors.CodeInvalidInput, "reason exceeds maximum length")
	}
	return nil
}
