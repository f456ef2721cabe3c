// Package taskman is a small task tracking backend: users register and
// sign in with a cookie based JWT session, then manage their own tasks.
//
// Sessions:
//   - Auther orchestrates register, login and refresh on top of a UserStore
//     and a TokenService. Every successful call returns an access/refresh
//     pair which SessionCookies writes as HttpOnly cookies.
//   - Tokens carry a type claim, an access token is never accepted where a
//     refresh token is expected and the other way around.
//
// Storage:
//   - Users and Tasks sit on the generic repository package, an adapter
//     over go-repository-bun. The RepositoryManager groups them and
//     exposes RunInTx.
//   - Service wraps a repository, validates input and translates storage
//     failures into go-errors values the HTTP layer renders.
//
// HTTP:
//   - RegisterRoutes mounts everything on a go-router Router, the binary
//     serves it through the fiber adapter.
//
// Activity sinks:
//   - ActivitySink receives login, register and refresh events. Sinks run
//     best-effort, errors are logged and never fail the request.
package taskman
