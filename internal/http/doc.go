// Package http exposes the attendance API over HTTP using a chi router.
//
// Every route except /login, /healthz and /metrics requires a token, taken
// from the Authorization bearer header or the session_token cookie:
//   - POST /login, POST /logout, GET /me: local sign-in. Login answers
//     {"token","expires_at","identity"} and also sets the session_token cookie.
//   - GET /sessions?when=future|past|all|range&from=&to=: sessions by date
//     ascending with confirmed and available seats.
//   - POST /sessions/{id}/confirmations: confirms the caller and answers
//     {"result":"confirmed|already_confirmed|full"}.
//   - POST /sessions, PUT /sessions/{id}, DELETE /sessions/{id},
//     GET /sessions/{id}/roster, DELETE /confirmations/{id}: administrator only.
//   - GET /me/attendance, GET /me/profile, POST /me/payment/proof,
//     POST /me/payment/confirm, GET /ranking: student self-service.
//   - GET/POST /students, PUT/DELETE /students/{id},
//     PUT /students/{id}/payment-status, PUT /students/{id}/payment-terms:
//     administrator only.
//   - GET /live: websocket stream of seat counts.
//
// Error bodies share the errorResponse envelope with messages in Portuguese.
// Request and response DTOs live next to their handlers.
package http
