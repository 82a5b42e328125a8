package oss

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectKeyFromURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{
			name: "cdn url",
			url:  "https://cdn.example.com/reports/job-1/1700000000.json",
			want: "reports/job-1/1700000000.json",
		},
		{
			name: "bucket url",
			url:  "https://speech-reports.oss-cn-hangzhou.aliyuncs.com/reports/job-1/1700000000.json",
			want: "reports/job-1/1700000000.json",
		},
		{
			name: "unparsable",
			url:  "://not-a-url",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, objectKeyFromURL(tt.url))
		})
	}
}

func TestGetURL_PrefersCDN(t *testing.T) {
	c := &Client{bucketName: "speech-reports", cdnDomain: "cdn.example.com"}
	assert.Equal(t, "https://cdn.example.com/reports/job-1/1.json", c.GetURL("reports/job-1/1.json"))
}
