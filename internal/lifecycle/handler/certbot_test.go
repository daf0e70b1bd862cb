package handler_test

import (
	"net/http"
	"testing"
)

func TestIssue_startsAndSettles(t *testing.T) {
	router, svc := setupRouter(t, 1.0)
	do(t, router, http.MethodPost, "/domains/example.com")

	w := do(t, router, http.MethodPost, "/certbot/issue/example.com")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["status"] != "started" {
		t.Errorf("status = %v, want started", body["status"])
	}
	if body["previous_state"] != "unissued" {
		t.Errorf("previous_state = %v, want unissued", body["previous_state"])
	}

	svc.Wait()

	w = do(t, router, http.MethodGet, "/certbot/status/example.com")
	if w.Code != http.StatusOK {
		t.Fatalf("status check = %d, want 200", w.Code)
	}
	status := decode(t, w)
	if status["state"] != "issued" {
		t.Errorf("state = %v, want issued", status["state"])
	}
	if status["status"] != "valid" {
		t.Errorf("status = %v, want valid", status["status"])
	}
	if status["is_valid"] != true {
		t.Errorf("is_valid = %v, want true", status["is_valid"])
	}
	if status["expires_at"] == nil {
		t.Error("expires_at should be set after issuance")
	}
}

func TestIssue_unknownDomain404(t *testing.T) {
	router, _ := setupRouter(t, 1.0)

	w := do(t, router, http.MethodPost, "/certbot/issue/ghost.example")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestIssue_precondition400(t *testing.T) {
	router, svc := setupRouter(t, 1.0)
	do(t, router, http.MethodPost, "/domains/example.com")
	do(t, router, http.MethodPost, "/certbot/issue/example.com")
	svc.Wait()

	// Already issued: issuance is only allowed from unissued, failed,
	// and expired.
	w := do(t, router, http.MethodPost, "/certbot/issue/example.com")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400; body %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["error"] == "" {
		t.Error("precondition rejection must name the current state")
	}
}

func TestIssue_failureLandsOnRecord(t *testing.T) {
	router, svc := setupRouter(t, 0.0)
	do(t, router, http.MethodPost, "/domains/example.com")

	// The triggering request still succeeds; the failure is deferred.
	w := do(t, router, http.MethodPost, "/certbot/issue/example.com")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	svc.Wait()

	w = do(t, router, http.MethodGet, "/certbot/status/example.com")
	status := decode(t, w)
	if status["state"] != "failed" {
		t.Errorf("state = %v, want failed", status["state"])
	}
	if status["status"] != "not_found" {
		t.Errorf("status = %v, want not_found (no authority record)", status["status"])
	}
	if status["expires_at"] != nil {
		t.Errorf("expires_at = %v, want null", status["expires_at"])
	}
}

func TestRenew_fullCycle(t *testing.T) {
	router, svc := setupRouter(t, 1.0)
	do(t, router, http.MethodPost, "/domains/example.com")
	do(t, router, http.MethodPost, "/certbot/issue/example.com")
	svc.Wait()

	w := do(t, router, http.MethodPost, "/certbot/renew/example.com")
	if w.Code != http.StatusOK {
		t.Fatalf("renew status = %d, want 200; body %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["previous_state"] != "issued" {
		t.Errorf("previous_state = %v, want issued", body["previous_state"])
	}
	svc.Wait()

	w = do(t, router, http.MethodGet, "/certbot/status/example.com")
	status := decode(t, w)
	if status["state"] != "renewed" {
		t.Errorf("state = %v, want renewed", status["state"])
	}
}

func TestRenew_precondition400(t *testing.T) {
	router, _ := setupRouter(t, 1.0)
	do(t, router, http.MethodPost, "/domains/example.com")

	w := do(t, router, http.MethodPost, "/certbot/renew/example.com")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestRevoke_fullCycle(t *testing.T) {
	router, svc := setupRouter(t, 1.0)
	do(t, router, http.MethodPost, "/domains/example.com")
	do(t, router, http.MethodPost, "/certbot/issue/example.com")
	svc.Wait()

	w := do(t, router, http.MethodPost, "/certbot/revoke/example.com")
	if w.Code != http.StatusOK {
		t.Fatalf("revoke status = %d, want 200", w.Code)
	}
	svc.Wait()

	w = do(t, router, http.MethodGet, "/certbot/status/example.com")
	status := decode(t, w)
	if status["state"] != "revoked" {
		t.Errorf("state = %v, want revoked", status["state"])
	}
	if status["status"] != "revoked" {
		t.Errorf("authority status = %v, want revoked", status["status"])
	}
	if status["is_valid"] != false {
		t.Errorf("is_valid = %v, want false", status["is_valid"])
	}
}

func TestRevoke_precondition400(t *testing.T) {
	router, _ := setupRouter(t, 1.0)
	do(t, router, http.MethodPost, "/domains/example.com")

	w := do(t, router, http.MethodPost, "/certbot/revoke/example.com")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestStatus_unknownDomain404(t *testing.T) {
	router, _ := setupRouter(t, 1.0)

	w := do(t, router, http.MethodGet, "/certbot/status/ghost.example")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestStatus_notFoundBeforeIssuance(t *testing.T) {
	router, _ := setupRouter(t, 1.0)
	do(t, router, http.MethodPost, "/domains/example.com")

	w := do(t, router, http.MethodGet, "/certbot/status/example.com")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	status := decode(t, w)
	if status["status"] != "not_found" {
		t.Errorf("status = %v, want not_found", status["status"])
	}
	if status["state"] != "unissued" {
		t.Errorf("state = %v, want unissued", status["state"])
	}
}
