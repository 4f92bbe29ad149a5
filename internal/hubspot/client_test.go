package hubspot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/fachebot/meeting-brief/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCRM 模拟 HubSpot CRM v3 联系人接口
type fakeCRM struct {
	mu       sync.Mutex
	contacts []objectRow
	searches []searchRequest
	created  []map[string]string
	paths    []string
	status   int
}

func (f *fakeCRM) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer pat-test", r.Header.Get("Authorization"))

		f.mu.Lock()
		defer f.mu.Unlock()

		if f.status != 0 {
			w.WriteHeader(f.status)
			_, _ = w.Write([]byte(`{"status":"error","message":"boom"}`))
			return
		}

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/crm/v3/objects/contacts/search":
			var req searchRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			f.searches = append(f.searches, req)

			var results []objectRow
			for _, row := range f.contacts {
				if matches(row, req.FilterGroups[0].Filters) {
					results = append(results, row)
				}
			}
			_ = json.NewEncoder(w).Encode(searchResponse{Total: len(results), Results: results})

		case r.Method == http.MethodPost && r.URL.Path == "/crm/v3/objects/contacts":
			var body struct {
				Properties map[string]string `json:"properties"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			f.created = append(f.created, body.Properties)
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"9001","properties":{}}`))

		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/crm/v3/objects/contacts/"):
			f.paths = append(f.paths, r.URL.EscapedPath())
			id := strings.TrimPrefix(r.URL.Path, "/crm/v3/objects/contacts/")
			for _, row := range f.contacts {
				if row.ID == id {
					_ = json.NewEncoder(w).Encode(row)
					return
				}
			}
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"not found"}`))

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func matches(row objectRow, filters []filter) bool {
	for _, f := range filters {
		if !strings.EqualFold(row.Properties[f.PropertyName], f.Value) {
			return false
		}
	}
	return true
}

func contactRow(id, first, last, email, company string) objectRow {
	return objectRow{
		ID: id,
		Properties: map[string]string{
			"firstname":      first,
			"lastname":       last,
			"email":          email,
			"company":        company,
			"jobtitle":       "VP Growth",
			"lifecyclestage": "opportunity",
		},
	}
}

func newTestClient(t *testing.T, crm *fakeCRM) *Client {
	srv := httptest.NewServer(crm.handler(t))
	t.Cleanup(srv.Close)
	return NewClient(&config.HubSpot{Token: "pat-test", BaseURL: srv.URL + "/"}, srv.Client())
}

func TestFetchContactsByEmail(t *testing.T) {
	crm := &fakeCRM{contacts: []objectRow{
		contactRow("1", "Jane", "Doe", "jane@acme.com", "Acme"),
		contactRow("2", "Sam", "Roe", "sam@acme.com", "Acme"),
	}}
	c := newTestClient(t, crm)

	contacts, err := c.FetchContactsByEmail(context.Background(), []string{" Jane@Acme.com", "", "missing@acme.com", "jane@acme.com"})
	require.NoError(t, err)

	require.Len(t, contacts, 1)
	assert.Equal(t, "1", contacts[0].ID)
	assert.Equal(t, "Jane Doe", contacts[0].FullName())
	assert.Equal(t, "opportunity", contacts[0].LifecycleStage)

	// 去重后只查询两次
	require.Len(t, crm.searches, 2)
	assert.Equal(t, "email", crm.searches[0].FilterGroups[0].Filters[0].PropertyName)
	assert.Contains(t, crm.searches[0].Properties, "linkedin_url")
}

func TestFetchContactsByEmail_Empty(t *testing.T) {
	crm := &fakeCRM{}
	c := newTestClient(t, crm)

	contacts, err := c.FetchContactsByEmail(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, contacts)
	assert.Empty(t, crm.searches)
}

func TestFindContact_ByEmailFirst(t *testing.T) {
	crm := &fakeCRM{contacts: []objectRow{
		contactRow("7", "Peter", "Secor", "peter@corp.com", "Corp"),
	}}
	c := newTestClient(t, crm)

	contact, err := c.FindContact(context.Background(), "Someone Else", "", "PETER@corp.com")
	require.NoError(t, err)
	require.NotNil(t, contact)
	assert.Equal(t, "7", contact.ID)
	assert.Len(t, crm.searches, 1)
}

func TestFindContact_ByNamePrefersCompany(t *testing.T) {
	crm := &fakeCRM{contacts: []objectRow{
		contactRow("10", "Peter", "Secor", "p1@other.com", "Other Inc"),
		contactRow("11", "Peter", "Secor", "p2@corp.com", "Corp Holdings"),
	}}
	c := newTestClient(t, crm)

	contact, err := c.FindContact(context.Background(), "Peter J. Secor", "corp", "unknown@corp.com")
	require.NoError(t, err)
	require.NotNil(t, contact)
	assert.Equal(t, "11", contact.ID)

	// 邮箱未命中后按姓名查询
	require.Len(t, crm.searches, 2)
	filters := crm.searches[1].FilterGroups[0].Filters
	require.Len(t, filters, 2)
	assert.Equal(t, "Peter", filters[0].Value)
	assert.Equal(t, "Secor", filters[1].Value)
}

func TestFindContact_NotFound(t *testing.T) {
	c := newTestClient(t, &fakeCRM{})

	contact, err := c.FindContact(context.Background(), "Nobody Here", "Acme", "")
	require.NoError(t, err)
	assert.Nil(t, contact)

	contact, err = c.FindContact(context.Background(), "  ", "", "")
	require.NoError(t, err)
	assert.Nil(t, contact)
}

func TestGetContact(t *testing.T) {
	crm := &fakeCRM{contacts: []objectRow{contactRow("42", "Ana", "Lima", "ana@x.io", "X")}}
	c := newTestClient(t, crm)

	contact, err := c.GetContact(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "ana@x.io", contact.Email)

	_, err = c.GetContact(context.Background(), "404")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestGetContact_EscapesID(t *testing.T) {
	crm := &fakeCRM{contacts: []objectRow{contactRow("a/b", "Ana", "Lima", "ana@x.io", "X")}}
	c := newTestClient(t, crm)

	contact, err := c.GetContact(context.Background(), "a/b")
	require.NoError(t, err)
	assert.Equal(t, "a/b", contact.ID)
	require.Len(t, crm.paths, 1)
	assert.Equal(t, "/crm/v3/objects/contacts/a%2Fb", crm.paths[0])
}

func TestCreateContact(t *testing.T) {
	crm := &fakeCRM{}
	c := newTestClient(t, crm)

	id, err := c.CreateContact(context.Background(), NewContact{
		FirstName:   "Jane",
		LastName:    "Doe",
		Email:       "Jane@Acme.com",
		Company:     "Acme",
		LinkedInURL: "https://www.linkedin.com/in/janedoe",
	})
	require.NoError(t, err)
	assert.Equal(t, "9001", id)

	require.Len(t, crm.created, 1)
	assert.Equal(t, "jane@acme.com", crm.created[0]["email"])
	assert.Equal(t, "https://www.linkedin.com/in/janedoe", crm.created[0]["linkedin_url"])
	_, hasTitle := crm.created[0]["jobtitle"]
	assert.False(t, hasTitle)
}

func TestAPIError(t *testing.T) {
	crm := &fakeCRM{status: http.StatusUnauthorized}
	c := newTestClient(t, crm)

	_, err := c.FetchContactsByEmail(context.Background(), []string{"a@b.com"})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "HubSpot error: "))
	assert.Contains(t, err.Error(), "boom")
}

func TestNotConfigured(t *testing.T) {
	c := NewClient(&config.HubSpot{BaseURL: "http://127.0.0.1:1"}, nil)
	assert.False(t, c.Configured())

	_, err := c.FetchContactsByEmail(context.Background(), []string{"a@b.com"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestContact_UnmarshalLegacyID(t *testing.T) {
	var c Contact
	require.NoError(t, json.Unmarshal([]byte(`{"_id":"55","firstname":"Jo"}`), &c))
	assert.Equal(t, "55", c.ID)
	assert.Equal(t, "Jo", c.FirstName)
	assert.Equal(t, "Jo", c.FullName())

	require.NoError(t, json.Unmarshal([]byte(`{"id":"66","_id":"55"}`), &c))
	assert.Equal(t, "66", c.ID)
}

func TestSplitNameForSearch(t *testing.T) {
	first, last := splitNameForSearch("Peter J. Secor,")
	assert.Equal(t, "Peter", first)
	assert.Equal(t, "Secor", last)
}

func TestSplitNameForCreate(t *testing.T) {
	tests := []struct {
		name, first, last string
	}{
		{"Jane Doe", "Jane", "Doe"},
		{"Mary Ann Smith", "Mary Ann", "Smith"},
		{"Cher", "Cher", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		first, last := SplitNameForCreate(tt.name)
		assert.Equal(t, tt.first, first, tt.name)
		assert.Equal(t, tt.last, last, tt.name)
	}
}
