package source

import (
	"testing"
)

func TestExtractPhones_TelLinkFirst(t *testing.T) {
	body := `<a href="tel:02-555-1234">전화</a>
대표전화 02-555-1234 / 행정실 02-555-9999`

	phones := extractPhones(body)
	if len(phones) != 2 {
		t.Fatalf("phones = %v, want 2 entries", phones)
	}
	if phones[0] != "02-555-1234" {
		t.Errorf("first phone = %q, want tel: link value", phones[0])
	}
}

func TestExtractPhones_ExcludesFaxLabeled(t *testing.T) {
	body := "전화 02-555-1234 팩스 02-555-5678"

	phones := extractPhones(body)
	if len(phones) != 1 || phones[0] != "02-555-1234" {
		t.Errorf("phones = %v, want only the non-fax number", phones)
	}
	faxes := extractFaxes(body)
	if len(faxes) != 1 || faxes[0] != "02-555-5678" {
		t.Errorf("faxes = %v", faxes)
	}
}

func TestExtractPhones_FullWidthDigits(t *testing.T) {
	phones := extractPhones("대표번호 ０２-５５５-１２３４")
	if len(phones) != 1 || phones[0] != "02-555-1234" {
		t.Errorf("phones = %v, want folded ASCII number", phones)
	}
}

func TestExtractEmails_MailtoFirst(t *testing.T) {
	body := `<a href="mailto:Office@GraceChurch.or.kr">문의</a>
footer: webmaster@gracechurch.or.kr`

	emails := extractEmails(body)
	if len(emails) != 2 {
		t.Fatalf("emails = %v", emails)
	}
	if emails[0] != "office@gracechurch.or.kr" {
		t.Errorf("first email = %q, want lowercased mailto value", emails[0])
	}
}

func TestExtractAddresses(t *testing.T) {
	body := `오시는 길
서울특별시 강남구 테헤란로 123 은혜빌딩 2층
Copyright 2026`

	addrs := extractAddresses(body)
	if len(addrs) != 1 {
		t.Fatalf("addrs = %v", addrs)
	}
	if addrs[0] != "서울특별시 강남구 테헤란로 123 은혜빌딩 2층" {
		t.Errorf("addr = %q", addrs[0])
	}
}

func TestExtract_NoMatches(t *testing.T) {
	body := "nothing useful here"
	if got := extractPhones(body); len(got) != 0 {
		t.Errorf("phones = %v", got)
	}
	if got := extractEmails(body); len(got) != 0 {
		t.Errorf("emails = %v", got)
	}
	if got := extractAddresses(body); len(got) != 0 {
		t.Errorf("addrs = %v", got)
	}
}
