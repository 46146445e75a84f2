package infrastructure

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPDetectorFiltersBelowThreshold(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/detect" {
			t.Errorf("path = %q, want /detect", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("model"); got != "yolov8n" {
			t.Errorf("model = %q, want yolov8n", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"detections":[
			{"class":"person","confidence":0.91,"bbox":[10,20,30,40]},
			{"class":"cat","confidence":0.32,"bbox":[1,2,3,4]},
			{"class":"car","confidence":0.55,"bbox":[5,6,7,8]}
		]}`))
	}))
	defer srv.Close()

	det := NewHTTPDetector(srv.URL, "yolov8n", 0.5)
	got, err := det.Detect(context.Background(), []byte("fake jpeg"))
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2 (0.32 filtered out)", len(got))
	}
	if got[0].Label != "person" || got[0].Confidence != 0.91 {
		t.Errorf("first candidate = %+v", got[0])
	}
	if got[0].Box.X != 10 || got[0].Box.Y != 20 || got[0].Box.Width != 30 || got[0].Box.Height != 40 {
		t.Errorf("bbox = %+v, want {10 20 30 40}", got[0].Box)
	}
	for _, c := range got {
		if c.Confidence < 0.5 {
			t.Errorf("candidate below threshold leaked through: %+v", c)
		}
	}
}

func TestHTTPDetectorPropagatesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	det := NewHTTPDetector(srv.URL, "yolov8n", 0.5)
	if _, err := det.Detect(context.Background(), []byte("fake jpeg")); err == nil {
		t.Fatal("want error on 503, got nil")
	}
}

func TestHTTPDetectorRejectsMalformedBBox(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"detections":[{"class":"person","confidence":0.9,"bbox":[1,2]}]}`))
	}))
	defer srv.Close()

	det := NewHTTPDetector(srv.URL, "yolov8n", 0.5)
	if _, err := det.Detect(context.Background(), []byte("fake jpeg")); err == nil {
		t.Fatal("want error on malformed bbox, got nil")
	}
}
