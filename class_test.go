package swcache

import (
	"net/http"
	"testing"
)

func TestClassifyPriorityOrder(t *testing.T) {
	c, err := NewClassifier(ClassifierConfig{})
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	cases := []struct {
		url    string
		header map[string]string
		want   Class
	}{
		{"https://app.test/assets/logo.PNG", nil, ClassImage},
		{"https://cdn.test/photos/deep/a.webp", nil, ClassImage},
		{"https://app.test/avatar", map[string]string{DestinationHeader: "image"}, ClassImage},
		// image wins over api and page
		{"https://proj.supabase.co/storage/v1/a.jpg", map[string]string{"Accept": "text/html"}, ClassImage},
		{"https://proj.supabase.co/rest/v1/meals", nil, ClassAPI},
		{"https://app.test/api/stats", map[string]string{"Accept": "text/html"}, ClassAPI},
		{"https://app.test/rest/v1/x", nil, ClassAPI},
		{"https://app.test/dashboard", map[string]string{DestinationHeader: "document"}, ClassPage},
		{"https://app.test/workouts", map[string]string{"Accept": "text/html,application/xhtml+xml"}, ClassPage},
		// page wins over static
		{"https://app.test/assets/readme", map[string]string{"Accept": "text/html"}, ClassPage},
		{"https://app.test/main.js", nil, ClassStatic},
		{"https://app.test/css/site.css", nil, ClassStatic},
		{"https://app.test/fonts/inter.woff2", nil, ClassStatic},
		{"https://app.test/assets/data.bin", nil, ClassStatic},
		{"https://app.test/health", nil, ClassOther},
		{"https://app.test/apix/thing", nil, ClassOther},
	}
	for _, tc := range cases {
		req, _ := http.NewRequest(http.MethodGet, tc.url, nil)
		for k, v := range tc.header {
			req.Header.Set(k, v)
		}
		if got := c.Classify(req); got != tc.want {
			t.Fatalf("Classify(%s) = %s, want %s", tc.url, got, tc.want)
		}
	}
}

func TestClassifierCustomConfig(t *testing.T) {
	c, err := NewClassifier(ClassifierConfig{
		APIHostSubstring:   "backend",
		APIPathPrefixes:    []string{"/graphql"},
		ImagePatterns:      []string{"media/**"},
		StaticPathPrefixes: []string{},
	})
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	cases := map[string]Class{
		"https://backend.test/anything":    ClassAPI,
		"https://app.test/graphql":         ClassAPI,
		"https://app.test/rest/v1/x":       ClassOther,
		"https://app.test/media/clip":      ClassImage,
		"https://app.test/assets/logo.png": ClassOther,
		"https://app.test/assets/app.js":   ClassStatic,
	}
	for u, want := range cases {
		req, _ := http.NewRequest(http.MethodGet, u, nil)
		if got := c.Classify(req); got != want {
			t.Fatalf("Classify(%s) = %s, want %s", u, got, want)
		}
	}
}
