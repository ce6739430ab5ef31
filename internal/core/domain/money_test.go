package domain

import "testing"

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    string
		wantErr bool
	}{
		{name: "dot separator", text: "450.50", want: "450.5"},
		{name: "comma separator", text: "450,50", want: "450.5"},
		{name: "integer", text: "1500", want: "1500"},
		{name: "empty is zero", text: "", want: "0"},
		{name: "blank is zero", text: "   ", want: "0"},
		{name: "garbage", text: "R$ abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.text)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseAmount(%q) expected error", tt.text)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAmount(%q) error = %v", tt.text, err)
			}
			if got.String() != tt.want {
				t.Fatalf("ParseAmount(%q) = %s, want %s", tt.text, got, tt.want)
			}
		})
	}
}
