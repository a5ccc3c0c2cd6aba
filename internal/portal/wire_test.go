package portal

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeRead(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{"absent", ``, false},
		{"null", `null`, false},
		{"bool true", `true`, true},
		{"bool false", `false`, false},
		{"string true", `"true"`, true},
		{"string padded upper", `" TRUE "`, true},
		{"string false", `"false"`, false},
		{"string garbage", `"yes please"`, false},
		{"number one", `1`, true},
		{"number zero", `0`, false},
		{"object", `{"read":true}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeRead(json.RawMessage(tt.raw)))
		})
	}
}

func TestParseTime(t *testing.T) {
	want := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		raw  string
		want time.Time
	}{
		{"rfc3339", `"2024-03-01T09:30:00Z"`, want},
		{"rfc3339 millis", `"2024-03-01T09:30:00.000Z"`, want},
		{"offset", `"2024-03-01T17:30:00+08:00"`, want},
		{"epoch millis", `1709285400000`, want},
		{"mongo wrapper", `{"$date":"2024-03-01T09:30:00Z"}`, want},
		{"date only", `"2024-03-01"`, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"garbage", `"last tuesday"`, time.Time{}},
		{"null", `null`, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(parseTime(json.RawMessage(tt.raw))), "got %v", parseTime(json.RawMessage(tt.raw)))
		})
	}
}

func TestWireNotificationFallbacks(t *testing.T) {
	var w wireNotification
	err := json.Unmarshal([]byte(`{"_id":{"$oid":"65f0"},"message":"Class moved","date":"2024-03-01T09:30:00Z","read":"true"}`), &w)
	assert.NoError(t, err)

	n := w.canonical()
	assert.Equal(t, "65f0", n.ID)
	assert.Equal(t, "Class moved", n.Message)
	assert.False(t, n.Timestamp.IsZero())
	assert.True(t, n.Read)
}

func TestWirePaymentPackagePrice(t *testing.T) {
	var withPrice, withoutPrice wirePayment
	assert.NoError(t, json.Unmarshal([]byte(`{"id":"p1","userId":"@kenji","amount":"400","isPackage":"true","packageType":"Judo","packagePrice":1600,"packageSessions":"8","status":"Verified"}`), &withPrice))
	assert.NoError(t, json.Unmarshal([]byte(`{"id":"p2","userId":"kenji","amount":400,"isPackage":true,"packageType":"Judo"}`), &withoutPrice))

	rec := withPrice.canonical()
	assert.True(t, rec.IsPackage)
	assert.Equal(t, 8, rec.PackageSessions)
	assert.Equal(t, "verified", string(rec.Status))
	if assert.NotNil(t, rec.PackagePrice) {
		assert.Equal(t, "1600", rec.PackagePrice.String())
	}
	assert.Equal(t, "400", rec.Amount.String())

	assert.Nil(t, withoutPrice.canonical().PackagePrice)
}

func TestParseStringList(t *testing.T) {
	assert.Equal(t, []string{"Judo", "BJJ"}, parseStringList(json.RawMessage(`["Judo","BJJ"]`)))
	assert.Equal(t, []string{"Judo", "BJJ"}, parseStringList(json.RawMessage(`"Judo, BJJ,"`)))
	assert.Nil(t, parseStringList(json.RawMessage(`""`)))
}

func TestMatchesUser(t *testing.T) {
	assert.True(t, matchesUser("@kenji", "kenji"))
	assert.True(t, matchesUser("kenji", "@kenji"))
	assert.True(t, matchesUser("kenji", "kenji"))
	assert.False(t, matchesUser("kenji2", "kenji"))
	assert.False(t, matchesUser("", ""))
}
