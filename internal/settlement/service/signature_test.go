package service

import "testing"

func TestVerifySignature(t *testing.T) {
	secret := "s3cret"
	valid := ComputeSignature(secret, "order_1", "pay_1")

	if len(valid) != 64 {
		t.Fatalf("expected hex sha256, got %q", valid)
	}
	if !VerifySignature(secret, "order_1", "pay_1", valid) {
		t.Fatalf("valid signature rejected")
	}
	if VerifySignature(secret, "order_1", "pay_2", valid) {
		t.Fatalf("signature for another payment accepted")
	}
	if VerifySignature("other", "order_1", "pay_1", valid) {
		t.Fatalf("signature under another secret accepted")
	}
	if VerifySignature("", "order_1", "pay_1", ComputeSignature("", "order_1", "pay_1")) {
		t.Fatalf("empty secret must never verify")
	}
}
