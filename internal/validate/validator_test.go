package validate

import (
	"context"
	"errors"
	"testing"

	"github.com/orgdesk/enrich-cli/internal/model"
)

func recordWithAddress(addr string) *model.OrganizationRecord {
	rec := &model.OrganizationRecord{ID: "org-1", Name: "Grace Church"}
	if addr != "" {
		rec.SetField(model.FieldAddress, model.FieldState{
			Value:      addr,
			Tier:       model.TierStrict,
			Confidence: 0.9,
		})
	}
	return rec
}

func alwaysFetchable() URLChecker {
	return URLCheckerFunc(func(_ context.Context, _ string) error { return nil })
}

func neverFetchable() URLChecker {
	return URLCheckerFunc(func(_ context.Context, _ string) error { return errors.New("unreachable") })
}

func TestValidate_Phone_Tiers(t *testing.T) {
	v := New(alwaysFetchable())
	ctx := context.Background()

	tests := []struct {
		name     string
		raw      string
		rec      *model.OrganizationRecord
		accepted bool
		tier     model.ConfidenceTier
	}{
		{
			name:     "full seoul number with matching address",
			raw:      "02-555-1234",
			rec:      recordWithAddress("서울특별시 강남구 테헤란로 123"),
			accepted: true,
			tier:     model.TierStrict,
		},
		{
			name:     "full number without address passes strict",
			raw:      "02-555-1234",
			rec:      recordWithAddress(""),
			accepted: true,
			tier:     model.TierStrict,
		},
		{
			name:     "area code contradicts address drops to moderate",
			raw:      "02-555-1234",
			rec:      recordWithAddress("부산광역시 해운대구 센텀로 45"),
			accepted: true,
			tier:     model.TierModerate,
		},
		{
			name:     "mobile number skips region check",
			raw:      "010-1234-5678",
			rec:      recordWithAddress("부산광역시 해운대구 센텀로 45"),
			accepted: true,
			tier:     model.TierStrict,
		},
		{
			name:     "full-width portal digits fold before the scan",
			raw:      "０２－５５５－１２３４",
			rec:      recordWithAddress("서울특별시 강남구 테헤란로 123"),
			accepted: true,
			tier:     model.TierStrict,
		},
		{
			name:     "truncated number passes relaxed only",
			raw:      "02-1234",
			rec:      recordWithAddress(""),
			accepted: true,
			tier:     model.TierRelaxed,
		},
		{
			name:     "few digits falls to last resort",
			raw:      "1234",
			rec:      recordWithAddress(""),
			accepted: true,
			tier:     model.TierLastResort,
		},
		{
			name:     "no digits rejected outright",
			raw:      "call the office",
			rec:      recordWithAddress(""),
			accepted: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := v.Validate(ctx, model.FieldPhone, tt.raw, tt.rec)
			if verdict.Accepted != tt.accepted {
				t.Fatalf("accepted = %v, want %v (reason: %s)", verdict.Accepted, tt.accepted, verdict.Reason)
			}
			if tt.accepted && verdict.Tier != tt.tier {
				t.Errorf("tier = %s, want %s", verdict.Tier, tt.tier)
			}
		})
	}
}

// A value that passes both relaxed and strict must be reported at strict:
// the scan is strict-to-relaxed and stops at the first accepting tier.
func TestValidate_StrictestTierWins(t *testing.T) {
	v := New(alwaysFetchable())

	verdict := v.Validate(context.Background(), model.FieldPhone, "02-555-1234", recordWithAddress(""))
	if !verdict.Accepted {
		t.Fatalf("expected acceptance, got %s", verdict.Reason)
	}
	if verdict.Tier != model.TierStrict {
		t.Errorf("expected strict tier, got %s", verdict.Tier)
	}
	if got := verdict.Tier.Confidence(); got != 0.9 {
		t.Errorf("expected strict confidence 0.9, got %v", got)
	}
}

func TestValidate_TruncatedPhoneConfidence(t *testing.T) {
	v := New(alwaysFetchable())

	verdict := v.Validate(context.Background(), model.FieldPhone, "02-1234", recordWithAddress(""))
	if !verdict.Accepted {
		t.Fatalf("expected relaxed acceptance, got %s", verdict.Reason)
	}
	if got := verdict.Tier.Confidence(); got != 0.5 {
		t.Errorf("expected relaxed confidence 0.5, got %v", got)
	}
}

func TestValidate_Fax_SharesPhoneRules(t *testing.T) {
	v := New(alwaysFetchable())

	verdict := v.Validate(context.Background(), model.FieldFax, "02-555-9999", recordWithAddress("서울 중구"))
	if !verdict.Accepted || verdict.Tier != model.TierStrict {
		t.Errorf("fax should validate like phone, got %+v", verdict)
	}
}

func TestValidate_Email_Tiers(t *testing.T) {
	v := New(alwaysFetchable())
	ctx := context.Background()

	tests := []struct {
		raw      string
		accepted bool
		tier     model.ConfidenceTier
	}{
		{"office@gracechurch.or.kr", true, model.TierStrict},
		{"Office <office@gracechurch.or.kr>", true, model.TierModerate},
		{"office@localhost", true, model.TierModerate},
		{"not-an-email", false, model.TierNone},
		{"two@@signs", false, model.TierNone},
	}

	for _, tt := range tests {
		verdict := v.Validate(ctx, model.FieldEmail, tt.raw, nil)
		if verdict.Accepted != tt.accepted {
			t.Errorf("%q: accepted = %v, want %v", tt.raw, verdict.Accepted, tt.accepted)
			continue
		}
		if tt.accepted && verdict.Tier != tt.tier {
			t.Errorf("%q: tier = %s, want %s", tt.raw, verdict.Tier, tt.tier)
		}
	}
}

func TestValidate_Homepage_RequiresFetchability(t *testing.T) {
	ctx := context.Background()

	reachable := New(alwaysFetchable())
	verdict := reachable.Validate(ctx, model.FieldHomepage, "https://www.gracechurch.or.kr", nil)
	if !verdict.Accepted || verdict.Tier != model.TierStrict {
		t.Errorf("explicit-scheme fetchable URL should be strict, got %+v", verdict)
	}

	verdict = reachable.Validate(ctx, model.FieldHomepage, "gracechurch.or.kr", nil)
	if !verdict.Accepted || verdict.Tier != model.TierModerate {
		t.Errorf("bare host should be moderate, got %+v", verdict)
	}

	// Structurally valid but dead: rejected at every tier.
	dead := New(neverFetchable())
	verdict = dead.Validate(ctx, model.FieldHomepage, "https://www.gracechurch.or.kr", nil)
	if verdict.Accepted {
		t.Errorf("unreachable URL must be rejected, got %+v", verdict)
	}

	verdict = reachable.Validate(ctx, model.FieldHomepage, "ftp://files.example.com", nil)
	if verdict.Accepted {
		t.Errorf("non-http scheme must be rejected, got %+v", verdict)
	}
}

func TestValidate_Address_Tiers(t *testing.T) {
	v := New(alwaysFetchable())
	ctx := context.Background()

	tests := []struct {
		raw      string
		accepted bool
		tier     model.ConfidenceTier
	}{
		{"서울특별시 강남구 테헤란로 123", true, model.TierStrict},
		{"서울특별시 강남구 테헤란로", true, model.TierModerate},
		{"somewhere downtown", true, model.TierRelaxed},
		{"대전", true, model.TierModerate},
		{"", false, model.TierNone},
	}

	for _, tt := range tests {
		verdict := v.Validate(ctx, model.FieldAddress, tt.raw, nil)
		if verdict.Accepted != tt.accepted {
			t.Errorf("%q: accepted = %v, want %v (%s)", tt.raw, verdict.Accepted, tt.accepted, verdict.Reason)
			continue
		}
		if tt.accepted && verdict.Tier != tt.tier {
			t.Errorf("%q: tier = %s, want %s", tt.raw, verdict.Tier, tt.tier)
		}
	}
}

func TestValidate_RejectionIsMissingNotLowQuality(t *testing.T) {
	v := New(alwaysFetchable())

	verdict := v.Validate(context.Background(), model.FieldEmail, "no email listed", nil)
	if verdict.Accepted {
		t.Fatal("expected rejection")
	}
	if verdict.Tier != model.TierNone {
		t.Errorf("rejected verdict must carry TierNone, got %s", verdict.Tier)
	}
	if verdict.Tier.Confidence() != 0 {
		t.Errorf("rejected verdict must carry zero confidence")
	}
	if verdict.Reason == "" {
		t.Error("rejected verdict should explain why")
	}
}

func TestAreaCode(t *testing.T) {
	tests := []struct {
		digits string
		want   string
	}{
		{"025551234", "02"},
		{"03112345678", "031"},
		{"01012345678", "010"},
		{"15881234", "15"},
		{"9991234", ""},
	}
	for _, tt := range tests {
		if got := AreaCode(tt.digits); got != tt.want {
			t.Errorf("AreaCode(%q) = %q, want %q", tt.digits, got, tt.want)
		}
	}
}

func TestDigitsOnly(t *testing.T) {
	if got := DigitsOnly("02-555-1234"); got != "025551234" {
		t.Errorf("DigitsOnly = %q", got)
	}
	if got := DigitsOnly("tel: none"); got != "" {
		t.Errorf("DigitsOnly = %q", got)
	}
	if got := DigitsOnly("０２－５５５－１２３４"); got != "025551234" {
		t.Errorf("DigitsOnly full-width = %q", got)
	}
}
