package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/arbiterhq/arbiter/util"
)

// HTTPDirectory looks up subject profiles against the identity
// provider's userinfo-style endpoint.
type HTTPDirectory struct {
	Client   *http.Client
	Host     string
	APIToken string
}

func NewHTTPDirectory(host, token string) *HTTPDirectory {
	return &HTTPDirectory{
		Client:   util.RobustHTTPClient(),
		Host:     host,
		APIToken: token,
	}
}

var _ Directory = (*HTTPDirectory)(nil)

func (d *HTTPDirectory) LookupSubject(ctx context.Context, subjectID string) (*Profile, error) {
	u := fmt.Sprintf("%s/subjects/%s", d.Host, url.PathEscape(subjectID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if d.APIToken != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", d.APIToken))
	}

	resp, err := d.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch subject profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("subject %s: %w", subjectID, ErrSubjectNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("identity provider returned status %d", resp.StatusCode)
	}

	var prof Profile
	if err := json.NewDecoder(resp.Body).Decode(&prof); err != nil {
		return nil, fmt.Errorf("failed to decode subject profile: %w", err)
	}
	if prof.SubjectID == "" {
		prof.SubjectID = subjectID
	}
	return &prof, nil
}
