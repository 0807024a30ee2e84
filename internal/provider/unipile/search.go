package unipile

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spigell/tener-recruiter/internal/model"
	"go.uber.org/zap"
)

const (
	apiSearchPath = "/v1/linkedin/search"
	apiUsersPath  = "/api/v1/users"
)

type searchResponse struct {
	Results []map[string]any `json:"results"`
	Items   []map[string]any `json:"items"`
}

type profileItem struct {
	ID               string  `mapstructure:"id"`
	LinkedInID       string  `mapstructure:"linkedin_id"`
	ProviderID       string  `mapstructure:"provider_id"`
	PublicIdentifier string  `mapstructure:"public_identifier"`
	FullName         string  `mapstructure:"full_name"`
	Name             string  `mapstructure:"name"`
	FirstName        string  `mapstructure:"first_name"`
	LastName         string  `mapstructure:"last_name"`
	Headline         string  `mapstructure:"headline"`
	Location         string  `mapstructure:"location"`
	Languages        []any   `mapstructure:"languages"`
	Skills           []any   `mapstructure:"skills"`
	YearsExperience  float64 `mapstructure:"years_experience"`
	NetworkDistance  string  `mapstructure:"network_distance"`
}

func (c *Client) SearchProfiles(ctx context.Context, query string, limit int) ([]model.Candidate, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))
	if c.accountID != "" {
		q.Set("account_id", c.accountID)
	}

	var resp searchResponse
	if err := c.getJSON(ctx, apiSearchPath, q, &resp); err != nil {
		return nil, fmt.Errorf("search profiles: %w", err)
	}

	items := resp.Results
	if len(items) == 0 {
		items = resp.Items
	}

	out := make([]model.Candidate, 0, len(items))
	for _, raw := range items {
		candidate, err := decodeProfile(raw)
		if err != nil {
			c.logger.Warn("skip undecodable profile", zap.Error(err))
			continue
		}
		if candidate.LinkedInID == "" {
			continue
		}
		out = append(out, candidate)
	}

	c.logger.Debug("got search response", zap.String("query", query), zap.Int("profiles", len(out)))
	return out, nil
}

// EnrichProfile loads the full profile and records the provider id that
// messaging endpoints expect.
func (c *Client) EnrichProfile(ctx context.Context, profile model.Candidate) (model.Candidate, error) {
	id := profile.ProviderID()
	if id == "" {
		return profile, fmt.Errorf("profile has no identifier")
	}

	raw, err := c.getUser(ctx, id)
	if err != nil {
		return profile, fmt.Errorf("enrich profile %s: %w", id, err)
	}

	detailed, err := decodeProfile(raw)
	if err != nil {
		return profile, err
	}

	merged := profile
	if merged.Raw == nil {
		merged.Raw = map[string]any{}
	}
	for k, v := range detailed.Raw {
		if _, ok := merged.Raw[k]; !ok {
			merged.Raw[k] = v
		}
	}
	if pid, ok := detailed.Raw["provider_id"].(string); ok && pid != "" {
		merged.Raw["provider_id"] = pid
	}
	if merged.Headline == "" {
		merged.Headline = detailed.Headline
	}
	if merged.Location == "" {
		merged.Location = detailed.Location
	}
	if len(merged.Skills) == 0 {
		merged.Skills = detailed.Skills
	}
	if merged.YearsExperience == 0 {
		merged.YearsExperience = detailed.YearsExperience
	}
	return merged, nil
}

func (c *Client) getUser(ctx context.Context, id string) (map[string]any, error) {
	q := url.Values{}
	if c.accountID != "" {
		q.Set("account_id", c.accountID)
	}

	var raw map[string]any
	if err := c.getJSON(ctx, apiUsersPath+"/"+url.PathEscape(id), q, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func decodeProfile(raw map[string]any) (model.Candidate, error) {
	var item profileItem
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &item,
	})
	if err != nil {
		return model.Candidate{}, err
	}
	if err := decoder.Decode(raw); err != nil {
		return model.Candidate{}, fmt.Errorf("decode profile: %w", err)
	}

	linkedInID := firstNonEmpty(item.ID, item.LinkedInID, item.PublicIdentifier, item.ProviderID)
	fullName := firstNonEmpty(item.FullName, item.Name, strings.TrimSpace(item.FirstName+" "+item.LastName), "Unknown")

	languages := names(item.Languages)
	if len(languages) == 0 {
		languages = []string{"en"}
	}

	stored := make(map[string]any, len(raw)+1)
	for k, v := range raw {
		stored[k] = v
	}
	if item.ProviderID != "" {
		stored["provider_id"] = item.ProviderID
	}

	return model.Candidate{
		LinkedInID:      linkedInID,
		FullName:        fullName,
		Headline:        item.Headline,
		Location:        item.Location,
		Languages:       languages,
		Skills:          names(item.Skills),
		YearsExperience: item.YearsExperience,
		Raw:             stored,
	}, nil
}

// names flattens lists that hold either strings or {"name": ...} objects.
func names(values []any) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		switch val := v.(type) {
		case string:
			if s := strings.TrimSpace(val); s != "" {
				out = append(out, s)
			}
		case map[string]any:
			if s, ok := val["name"].(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
