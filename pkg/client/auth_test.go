package client

import (
	"net/http"
	"testing"
)

func TestCredentials_Apply(t *testing.T) {
	tests := []struct {
		name   string
		creds  Credentials
		header string
		want   string
	}{
		{"no auth", NoAuth{}, "Authorization", ""},
		{"header auth user", HeaderAuth{Username: "u", Password: "p"}, "username", "u"},
		{"header auth password", HeaderAuth{Username: "u", Password: "p"}, "password", "p"},
		{"header auth incomplete", HeaderAuth{Username: "u"}, "username", ""},
		{"basic auth", BasicAuth{Username: "u", Password: "p"}, "Authorization", "Basic dTpw"},
		{"api key", APIKey("abc"), "Authorization", "Basic X19rZXlfXzphYmM="},
		{"bearer", BearerToken{Token: "tok"}, "Authorization", "Bearer tok"},
		{"empty bearer", BearerToken{}, "Authorization", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, "https://demo.lizard.net/api/v3/", nil)
			if err != nil {
				t.Fatal(err)
			}
			tt.creds.Apply(req)
			if got := req.Header.Get(tt.header); got != tt.want {
				t.Errorf("header %s = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}
