// Package kintone is a small REST client for the kintone endpoints used to
// publish plugins: file upload (/k/v1/file.json) and plugin install/update
// (/k/v1/plugin.json). Requests authenticate with the
// X-Cybozu-Authorization password header.
package kintone
