package messaging

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		t.Errorf("decode request body: %v", err)
	}
	return body
}

func TestEvolutionClientSendText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/message/sendText/frota" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("apikey") != "key" {
			t.Errorf("missing apikey header")
		}
		body := decodeBody(t, r)
		if body["number"] != "5531991570107" || body["text"] != "ola" {
			t.Errorf("unexpected body %v", body)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"key":{"id":"X"}}`)
	}))
	defer srv.Close()

	client := NewEvolutionClient(EvolutionConfig{BaseURL: srv.URL + "/", APIKey: "key", Instance: "frota"}, srv.Client())
	if err := client.SendText(context.Background(), "5531991570107", "ola"); err != nil {
		t.Fatalf("send text: %v", err)
	}
}

func TestEvolutionClientSendIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewEvolutionClient(EvolutionConfig{BaseURL: srv.URL, APIKey: "key", Instance: "frota"}, srv.Client())
	err := client.SendText(context.Background(), "5531991570107", "ola")
	if err == nil {
		t.Fatalf("expected error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected a single send attempt, got %d", calls)
	}
}

func TestEvolutionClientConnectionStateRetriesGet(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"instance":{"instanceName":"frota","state":"open"}}`)
	}))
	defer srv.Close()

	client := NewEvolutionClient(EvolutionConfig{BaseURL: srv.URL, APIKey: "key", Instance: "frota"}, srv.Client())
	client.rest.sleep = func(time.Duration) {}
	connected, err := client.Connected(context.Background())
	if err != nil {
		t.Fatalf("connected: %v", err)
	}
	if !connected {
		t.Fatalf("expected open state to count as connected")
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected retry after 503, got %d calls", calls)
	}
}

func TestEvolutionClientDownloadMedia(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/getBase64FromMediaMessage/frota" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body := decodeBody(t, r)
		msg, _ := body["message"].(map[string]any)
		key, _ := msg["key"].(map[string]any)
		if key["id"] != "IMG1" {
			t.Errorf("unexpected message key %v", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"base64":   base64.StdEncoding.EncodeToString([]byte("jpeg-bytes")),
			"mimetype": "image/jpeg",
		})
	}))
	defer srv.Close()

	client := NewEvolutionClient(EvolutionConfig{BaseURL: srv.URL, APIKey: "key", Instance: "frota"}, srv.Client())
	data, err := client.DownloadMedia(context.Background(), "IMG1")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if string(data) != "jpeg-bytes" {
		t.Fatalf("unexpected media %q", data)
	}
}

func TestEvolutionClientConnectAndGroups(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/instance/connect/frota":
			_, _ = io.WriteString(w, `{"pairingCode":"WZYEH1YY","code":"2@abc","base64":"data:image/png;base64,AAA"}`)
		case "/group/fetchAllGroups/frota":
			if r.URL.Query().Get("getParticipants") != "false" {
				t.Errorf("expected participants disabled")
			}
			_, _ = io.WriteString(w, `[{"id":"120363@g.us","subject":"Cargas MG","size":212}]`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewEvolutionClient(EvolutionConfig{BaseURL: srv.URL, APIKey: "key", Instance: "frota"}, srv.Client())
	code, err := client.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if code.PairingCode != "WZYEH1YY" || code.Code != "2@abc" || code.Empty() {
		t.Fatalf("unexpected pairing code %+v", code)
	}
	groups, err := client.FetchGroups(context.Background())
	if err != nil {
		t.Fatalf("fetch groups: %v", err)
	}
	if len(groups) != 1 || groups[0].Subject != "Cargas MG" {
		t.Fatalf("unexpected groups %+v", groups)
	}
}

func TestOfficialClientSendText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/PN1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token")
		}
		body := decodeBody(t, r)
		if body["messaging_product"] != "whatsapp" || body["type"] != "text" || body["to"] != "5531991570107" {
			t.Errorf("unexpected body %v", body)
		}
		_, _ = io.WriteString(w, `{"messages":[{"id":"wamid.X"}]}`)
	}))
	defer srv.Close()

	client := NewOfficialClient(OfficialConfig{Token: "tok", PhoneNumberID: "PN1", BaseURL: srv.URL}, srv.Client())
	if err := client.SendText(context.Background(), "5531991570107", "ola"); err != nil {
		t.Fatalf("send: %v", err)
	}
}

func TestOfficialClientSendMediaUploadsInlineContent(t *testing.T) {
	var uploaded, sent bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/PN1/media":
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("parse multipart: %v", err)
			}
			if r.FormValue("messaging_product") != "whatsapp" {
				t.Errorf("missing messaging_product field")
			}
			uploaded = true
			_, _ = io.WriteString(w, `{"id":"MEDIA9"}`)
		case "/PN1/messages":
			body := decodeBody(t, r)
			doc, _ := body["document"].(map[string]any)
			if doc["id"] != "MEDIA9" || doc["filename"] != "frete.pdf" {
				t.Errorf("unexpected document object %v", body)
			}
			sent = true
			_, _ = io.WriteString(w, `{}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewOfficialClient(OfficialConfig{Token: "tok", PhoneNumberID: "PN1", BaseURL: srv.URL}, srv.Client())
	media := OutboundMedia{
		Kind:     MediaDocument,
		Payload:  base64.StdEncoding.EncodeToString([]byte("%PDF-1.4")),
		MimeType: "application/pdf",
		FileName: "frete.pdf",
	}
	if err := client.SendMedia(context.Background(), "5531991570107", media); err != nil {
		t.Fatalf("send media: %v", err)
	}
	if !uploaded || !sent {
		t.Fatalf("expected upload then send, got uploaded=%v sent=%v", uploaded, sent)
	}
}

func TestOfficialClientDownloadMediaTwoStep(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token on %s", r.URL.Path)
		}
		switch r.URL.Path {
		case "/MEDIA1":
			_, _ = io.WriteString(w, `{"url":"`+srv.URL+`/files/MEDIA1","mime_type":"image/jpeg"}`)
		case "/files/MEDIA1":
			_, _ = io.WriteString(w, "raw-image")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewOfficialClient(OfficialConfig{Token: "tok", PhoneNumberID: "PN1", BaseURL: srv.URL}, srv.Client())
	data, err := client.DownloadMedia(context.Background(), "MEDIA1")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if string(data) != "raw-image" {
		t.Fatalf("unexpected media %q", data)
	}
}

func TestAPIErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"expired"}}`)
	}))
	defer srv.Close()

	client := NewOfficialClient(OfficialConfig{Token: "tok", PhoneNumberID: "PN1", BaseURL: srv.URL}, srv.Client())
	err := client.SendText(context.Background(), "5531991570107", "ola")
	if err == nil || !strings.Contains(err.Error(), "status 401") || !strings.Contains(err.Error(), "expired") {
		t.Fatalf("unexpected error %v", err)
	}
}
