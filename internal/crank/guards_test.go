package crank

import (
	"context"
	"strings"
	"testing"
)

func TestValidateStartup_Passes(t *testing.T) {
	rt, _ := newTestRuntime(newFakeClient(), newFakeClient())
	if err := ValidateStartup(context.Background(), rt); err != nil {
		t.Fatalf("ValidateStartup: %v", err)
	}
}

func TestValidateStartup_Failures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(l1, er *fakeClient)
		wantMsg string
	}{
		{
			name:    "l1 program id mismatch",
			mutate:  func(l1, er *fakeClient) { l1.programID = "other-prog" },
			wantMsg: "program id mismatch on L1",
		},
		{
			name:    "er program id mismatch",
			mutate:  func(l1, er *fakeClient) { er.programID = "other-prog" },
			wantMsg: "program id mismatch on ER",
		},
		{
			name:    "program not deployed on l1",
			mutate:  func(l1, er *fakeClient) { l1.deployed = false },
			wantMsg: "not executable on L1",
		},
		{
			name:    "program not deployed on er",
			mutate:  func(l1, er *fakeClient) { er.deployed = false },
			wantMsg: "not executable on ER",
		},
		{
			name:    "l1 wallet underfunded",
			mutate:  func(l1, er *fakeClient) { l1.balance = minWalletBalance - 1 },
			wantMsg: "insufficient L1 balance",
		},
		{
			name:    "er wallet underfunded",
			mutate:  func(l1, er *fakeClient) { er.balance = minWalletBalance - 1 },
			wantMsg: "insufficient ER balance",
		},
		{
			name:    "validator identity mismatch",
			mutate:  func(l1, er *fakeClient) { er.identity = "impostor" },
			wantMsg: "ER validator mismatch",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l1, er := newFakeClient(), newFakeClient()
			tc.mutate(l1, er)
			rt, _ := newTestRuntime(l1, er)

			err := ValidateStartup(context.Background(), rt)
			if err == nil || !strings.Contains(err.Error(), tc.wantMsg) {
				t.Fatalf("err = %v, want %q", err, tc.wantMsg)
			}
		})
	}
}
