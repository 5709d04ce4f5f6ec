package urlutil

import "testing"

func TestHostAndScheme(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		wantHost   string
		wantScheme string
		wantErr    bool
	}{
		{
			name:       "host with port and query",
			url:        "http://localhost:8000?a=b",
			wantHost:   "localhost",
			wantScheme: "http",
		},
		{
			name:       "https with path",
			url:        "https://app.example.com/callback",
			wantHost:   "app.example.com",
			wantScheme: "https",
		},
		{
			name:       "fragment ignored",
			url:        "https://example.com/cb#section",
			wantHost:   "example.com",
			wantScheme: "https",
		},
		{
			name:    "missing scheme",
			url:     "example.com/callback",
			wantErr: true,
		},
		{
			name:    "scheme only",
			url:     "https://",
			wantErr: true,
		},
		{
			name:    "empty",
			url:     "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, scheme, err := HostAndScheme(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("HostAndScheme(%q) expected error, got host=%q scheme=%q", tt.url, host, scheme)
				}
				return
			}
			if err != nil {
				t.Fatalf("HostAndScheme(%q) error = %v", tt.url, err)
			}
			if host != tt.wantHost {
				t.Errorf("host = %q, want %q", host, tt.wantHost)
			}
			if scheme != tt.wantScheme {
				t.Errorf("scheme = %q, want %q", scheme, tt.wantScheme)
			}
		})
	}
}

func TestBuildURL(t *testing.T) {
	tests := []struct {
		name   string
		base   string
		params map[string]string
		want   string
	}{
		{
			name:   "space encoded as percent-20",
			base:   "http://ab.cd",
			params: map[string]string{"x": "1 2"},
			want:   "http://ab.cd?x=1%202",
		},
		{
			name:   "multiple params in sorted order",
			base:   "https://client.example.com/cb",
			params: map[string]string{"state": "xyz", "code": "abc"},
			want:   "https://client.example.com/cb?code=abc&state=xyz",
		},
		{
			name:   "base already has query",
			base:   "https://client.example.com/cb?keep=1",
			params: map[string]string{"code": "abc"},
			want:   "https://client.example.com/cb?keep=1&code=abc",
		},
		{
			name:   "empty value kept",
			base:   "https://client.example.com/cb",
			params: map[string]string{"state": ""},
			want:   "https://client.example.com/cb?state=",
		},
		{
			name:   "reserved characters escaped",
			base:   "https://client.example.com/cb",
			params: map[string]string{"state": "a&b=c"},
			want:   "https://client.example.com/cb?state=a%26b%3Dc",
		},
		{
			name:   "no params returns base unchanged",
			base:   "https://client.example.com/cb",
			params: nil,
			want:   "https://client.example.com/cb",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildURL(tt.base, tt.params); got != tt.want {
				t.Errorf("BuildURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildURLStable(t *testing.T) {
	params := map[string]string{"b": "2", "a": "1", "c": "3"}
	first := BuildURL("https://example.com", params)
	for i := 0; i < 50; i++ {
		if got := BuildURL("https://example.com", params); got != first {
			t.Fatalf("BuildURL() not stable: got %q, want %q", got, first)
		}
	}
}
