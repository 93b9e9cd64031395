package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		recovery  Recovery
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, recovery: RecoverySurface, detailsOK: true},
		{code: CodeNotFound, status: http.StatusNotFound, recovery: RecoverySurface},
		{code: CodeSourceUnavailable, status: http.StatusBadGateway, recovery: RecoverySurface, detailsOK: true},
		{code: CodeRateLimited, status: http.StatusTooManyRequests, recovery: RecoveryRetry, retryable: true},
		{code: CodeKeyResolutionMiss, status: http.StatusUnprocessableEntity, recovery: RecoveryDegrade, detailsOK: true},
		{code: CodeWriteFailure, status: http.StatusBadGateway, recovery: RecoverySurface, detailsOK: true},
		{code: CodeSchemaMismatch, status: http.StatusConflict, recovery: RecoverySurface, detailsOK: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, recovery: RecoveryRetry, retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.Recovery != tt.recovery {
			t.Fatalf("code %s expected recovery %q got %q", tt.code, tt.recovery, meta.Recovery)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing order reference")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing order reference" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	base.WithDetails(map[string]any{"field": "order_number"})
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeWriteFailure, cause, "write ORDERS")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Error() != "WRITE_FAILURE: write ORDERS: boom" {
		t.Fatalf("unexpected error string %q", wrapped.Error())
	}
}

func TestIsCodeWalksChain(t *testing.T) {
	inner := New(CodeRateLimited, "quota")
	outer := Wrap(CodeWriteFailure, fmt.Errorf("batch: %w", inner), "write")

	if !IsCode(outer, CodeWriteFailure) {
		t.Fatalf("expected outer code to match")
	}
	if !IsCode(outer, CodeRateLimited) {
		t.Fatalf("expected inner code to match through fmt wrapping")
	}
	if IsCode(outer, CodeSchemaMismatch) {
		t.Fatalf("unexpected schema mismatch match")
	}
	if CodeOf(stdErrors.New("plain")) != CodeInternal {
		t.Fatalf("untyped errors should map to internal")
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeSchemaMismatch, "headers")
	if got := As(err); got == nil || got.Code() != CodeSchemaMismatch {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestDumpIncludesPostgresFields(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "order_overrides_order_id_key", TableName: "order_overrides"}
	d := Dump(Wrap(CodeConflict, pgErr, "upsert override"))

	if d.Code != CodeConflict {
		t.Fatalf("expected conflict code, got %s", d.Code)
	}
	if d.PGCode != "23505" || d.PGTable != "order_overrides" {
		t.Fatalf("postgres fields missing: %+v", d)
	}
	if len(d.Chain) != 2 {
		t.Fatalf("expected two chain entries, got %d", len(d.Chain))
	}
}
