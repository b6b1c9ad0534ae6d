// Package api provides the control plane REST API consumed by the admin
// console. Routes live under /api/v1; long-running work is answered with
// 202 and an operation to poll at /api/v1/operations/{id}.
//
//	@title						Server Panel API
//	@version					1.0
//	@description				Control plane for managed services, containers, certificates, cron jobs and the host firewall. Every /api/v1 route requires "Authorization: Bearer <token>".
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	ApiKeyAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token, sent as "Bearer <token>".
package api
