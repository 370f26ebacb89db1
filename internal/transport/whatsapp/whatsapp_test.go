package whatsapp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	logx "lastro/pkg/logx"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a, err := New(Config{
		AccountSID: "AC123",
		AuthToken:  "secret",
		From:       "+5511999990000",
		BaseURL:    srv.URL,
	}, logx.Nop())
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return a
}

func TestSendTextFormsRequest(t *testing.T) {
	t.Parallel()

	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2010-04-01/Accounts/AC123/Messages.json" {
			t.Errorf("path = %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "secret" {
			t.Error("basic auth missing or wrong")
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.PostForm.Get("From"); got != "whatsapp:+5511999990000" {
			t.Errorf("From = %q", got)
		}
		if got := r.PostForm.Get("To"); got != "whatsapp:+5511988880000" {
			t.Errorf("To = %q", got)
		}
		if got := r.PostForm.Get("Body"); got != "hello" {
			t.Errorf("Body = %q", got)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM1","status":"queued"}`))
	})

	rcpt, err := a.SendText(context.Background(), "+5511988880000", "hello")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if rcpt.ProviderID != "SM1" {
		t.Errorf("provider id = %q", rcpt.ProviderID)
	}
}

func TestSendTextHTTPError(t *testing.T) {
	t.Parallel()
	a := newTestAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	})
	if _, err := a.SendText(context.Background(), "+55", "x"); err == nil {
		t.Fatal("want error on 401")
	}
}

func TestSendTextProviderErrorCode(t *testing.T) {
	t.Parallel()
	a := newTestAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM2","status":"failed","error_code":63016}`))
	})
	if _, err := a.SendText(context.Background(), "+55", "x"); err == nil {
		t.Fatal("want error on provider error_code")
	}
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{From: "+55"}, logx.Nop()); err == nil {
		t.Error("missing credentials accepted")
	}
	if _, err := New(Config{AccountSID: "AC", AuthToken: "t"}, logx.Nop()); err == nil {
		t.Error("missing from number accepted")
	}
}
