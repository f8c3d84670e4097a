// Package google is a thin session over the People and Gmail REST APIs.
// The session holds an already-acquired OAuth access token; the consent
// flow that produces it is outside this process.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	peopleBaseURL = "https://people.googleapis.com/v1"
	gmailBaseURL  = "https://gmail.googleapis.com/gmail/v1"

	defaultTimeout = 60 * time.Second

	// Skip bulk mail; mirrors the product's default inbox filter.
	defaultMessageQuery = "is:sent OR is:inbox -category:promotions -category:social -from:noreply"
)

// Session is an authenticated handle to the People and Gmail APIs.
type Session struct {
	httpClient *http.Client
	token      string
	peopleBase string
	gmailBase  string
}

// NewSession creates a session around an access token.
func NewSession(token string) (*Session, error) {
	return NewSessionWithEndpoints(token, peopleBaseURL, gmailBaseURL)
}

// NewSessionWithEndpoints creates a session against explicit API base
// URLs, letting callers point it at a local server.
func NewSessionWithEndpoints(token, peopleBase, gmailBase string) (*Session, error) {
	if token == "" {
		return nil, fmt.Errorf("access token is required for google session")
	}
	return &Session{
		httpClient: &http.Client{Timeout: defaultTimeout},
		token:      token,
		peopleBase: peopleBase,
		gmailBase:  gmailBase,
	}, nil
}

func (s *Session) get(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("google API credential rejected (status %d)", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("google API status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse google API response: %w", err)
	}
	return nil
}

// Contact is one People API connection, reduced to the fields the
// identity graph consumes.
type Contact struct {
	Names []struct {
		DisplayName string `json:"displayName"`
	} `json:"names"`
	EmailAddresses []struct {
		Value string `json:"value"`
	} `json:"emailAddresses"`
	PhoneNumbers []struct {
		Value         string `json:"value"`
		CanonicalForm string `json:"canonicalForm"`
	} `json:"phoneNumbers"`
}

type connectionsResponse struct {
	Connections   []Contact `json:"connections"`
	NextPageToken string    `json:"nextPageToken"`
}

// ListContacts pages through the user's connections.
func (s *Session) ListContacts(ctx context.Context) ([]Contact, error) {
	var out []Contact
	page := ""
	for {
		q := url.Values{}
		q.Set("pageSize", "100")
		q.Set("personFields", "names,emailAddresses,phoneNumbers")
		if page != "" {
			q.Set("pageToken", page)
		}
		var resp connectionsResponse
		if err := s.get(ctx, s.peopleBase+"/people/me/connections?"+q.Encode(), &resp); err != nil {
			return nil, fmt.Errorf("failed to list contacts: %w", err)
		}
		out = append(out, resp.Connections...)
		if resp.NextPageToken == "" || len(resp.Connections) == 0 {
			break
		}
		page = resp.NextPageToken
	}
	return out, nil
}

// Message is a Gmail message with headers and snippet.
type Message struct {
	ID      string `json:"id"`
	Snippet string `json:"snippet"`
	Payload struct {
		Headers []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"headers"`
	} `json:"payload"`
}

// Header returns the first header with the given name, or "".
func (m Message) Header(name string) string {
	for _, h := range m.Payload.Headers {
		if h.Name == name {
			return h.Value
		}
	}
	return ""
}

type messageListResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	NextPageToken string `json:"nextPageToken"`
}

// ListMessages returns one page of message summaries plus the cursor
// for the next page.
func (s *Session) ListMessages(ctx context.Context, maxResults int, pageToken string) ([]Message, string, error) {
	if maxResults <= 0 {
		maxResults = 30
	}
	q := url.Values{}
	q.Set("maxResults", strconv.Itoa(maxResults))
	q.Set("q", defaultMessageQuery)
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}

	var list messageListResponse
	if err := s.get(ctx, s.gmailBase+"/users/me/messages?"+q.Encode(), &list); err != nil {
		return nil, "", fmt.Errorf("failed to list messages: %w", err)
	}

	var out []Message
	for _, m := range list.Messages {
		full, err := s.GetMessage(ctx, m.ID)
		if err != nil {
			// Skip a message that cannot be fetched; the batch goes on.
			fmt.Printf("warning: skipped gmail message %s: %v\n", m.ID, err)
			continue
		}
		out = append(out, full)
	}
	return out, list.NextPageToken, nil
}

// GetMessage fetches one message in full format.
func (s *Session) GetMessage(ctx context.Context, id string) (Message, error) {
	var msg Message
	if err := s.get(ctx, s.gmailBase+"/users/me/messages/"+id+"?format=full", &msg); err != nil {
		return msg, fmt.Errorf("failed to get message %s: %w", id, err)
	}
	return msg, nil
}
