// Package api serves the resource routes over HTTP:
//
//	GET  /api/resources?page=&limit=  paginated list
//	GET  /api/resources/:id           single resource
//	POST /api/resources               create
//
// Invalid input answers 400 with per-field details, unknown IDs 404 and
// repository failures 500 with a generic message; the cause is only
// logged.
package api
