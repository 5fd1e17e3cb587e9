package parsers

import "testing"

func TestParseProfilePlainJSON(t *testing.T) {
	res, err := ParseProfile(`{"client_name": "Анна", "gender": "женский", "response": "Здравствуйте, Анна!"}`)
	if err != nil {
		t.Fatalf("ParseProfile: %v", err)
	}
	if res.ClientName != "Анна" || res.Gender != "женский" {
		t.Errorf("profile = %q/%q", res.ClientName, res.Gender)
	}
	if res.Response != "Здравствуйте, Анна!" {
		t.Errorf("response = %q", res.Response)
	}
}

func TestParseProfileFencedJSON(t *testing.T) {
	raw := "Вот результат:\n```json\n{\"client_name\": \"Пётр\", \"gender\": \"мужской\", \"response\": \"Добрый день!\"}\n```\nготово"
	res, err := ParseProfile(raw)
	if err != nil {
		t.Fatalf("ParseProfile: %v", err)
	}
	if res.ClientName != "Пётр" {
		t.Errorf("client_name = %q", res.ClientName)
	}
}

func TestParseProfileBracesInsideStrings(t *testing.T) {
	res, err := ParseProfile(`{"client_name": "", "gender": "", "response": "смайлик :-} и скобка {"}`)
	if err != nil {
		t.Fatalf("ParseProfile: %v", err)
	}
	if res.Response != "смайлик :-} и скобка {" {
		t.Errorf("response = %q", res.Response)
	}
}

func TestParseProfileNoJSON(t *testing.T) {
	if _, err := ParseProfile("Здравствуйте! Как я могу к вам обращаться?"); err == nil {
		t.Error("prose without JSON should fail")
	}
	if _, err := ParseProfile(""); err == nil {
		t.Error("empty output should fail")
	}
}

func TestParseProfileUnbalanced(t *testing.T) {
	if _, err := ParseProfile(`{"client_name": "Анна"`); err == nil {
		t.Error("unterminated object should fail")
	}
}
