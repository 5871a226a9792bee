// Package api provides the LS Securities OpenAPI REST client.
//
// REST endpoint:
//   - https://openapi.ls-sec.co.kr:8080
//
// Supported requests: OAuth token issue (/oauth2/token) and the t9945
// stock master list (/stock/market-data).
package api
