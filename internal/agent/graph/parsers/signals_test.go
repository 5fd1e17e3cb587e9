package parsers

import "testing"

func TestParseClassifierVerdict(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"YES", true},
		{"yes", true},
		{"YES.\nПоиск нужен", true},
		{"NO", false},
		{"", false},
		{"не знаю", false},
	}
	for _, c := range cases {
		if got := ParseClassifierVerdict(c.in); got != c.want {
			t.Errorf("ParseClassifierVerdict(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestParseSignalsStripsVariables(t *testing.T) {
	raw := "1\nis_client_question_irrelevant_to_context=0\ndoes_client_asks_human_support=1"
	text, flags := ParseSignals(raw)
	if flags.OffTopic {
		t.Error("OffTopic should be false")
	}
	if !flags.WantsHuman {
		t.Error("WantsHuman should be true")
	}
	if text != "1" {
		t.Errorf("text = %q, want the bare digit", text)
	}
}

func TestParseSignalsAbsentVariables(t *testing.T) {
	text, flags := ParseSignals("Маникюр стоит 2000 рублей.")
	if flags.OffTopic || flags.WantsHuman {
		t.Error("flags should default to false")
	}
	if text != "Маникюр стоит 2000 рублей." {
		t.Errorf("text = %q", text)
	}
}

func TestParseSignalsSpacedAssignment(t *testing.T) {
	_, flags := ParseSignals("ответ\nis_client_question_irrelevant_to_context = 1")
	if !flags.OffTopic {
		t.Error("spaced assignment should still parse")
	}
}
