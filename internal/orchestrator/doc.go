// Package orchestrator implements the process-wide coordinator of the
// streaming engine.
//
// Overview
//
// The orchestrator owns the virtual-host configuration tree and mediates
// among four module kinds with distinct lifecycles:
//
//   1. Providers
//      - Ingress modules (RTMP, RTSP pull, OVT, MPEG-TS, file, scheduled).
//      - Selected by URL scheme when a pull is requested.
//
//   2. MediaRouters
//      - The intra-engine routing fabric. Applications register stream
//        observers with the router so the orchestrator learns about stream
//        birth and death.
//
//   3. Transcoders
//      - Media transformation modules notified of application lifecycle.
//
//   4. Publishers
//      - Egress modules (LLHLS, WebRTC, ...) notified last on create so they
//        can subscribe to the router during their own setup.
//
// High-Level Workflow
//
// A configuration snapshot enters ApplyOriginMap, which reconciles the
// desired virtual-host tree against live state:
//
//   - Mark: every live host, domain, and origin is marked for checking.
//   - Diff: domains match by name; origins match by location and compare
//     scheme and URL list. New entries are created, missing ones deleted,
//     modified origins replaced.
//   - Apply: deletions run strictly before creations so a renamed origin
//     never collides with its predecessor. Surviving items settle back into
//     the applied state.
//
// Application creation fans out to every registered module in kind order
// (media routers, providers, transcoders, publishers). If any module fails,
// the modules that already created the application are rolled back in
// reverse order and no partial state is retained. Deletion fans out in the
// reverse kind order and is best-effort: failures are logged and the
// application is never revived.
//
// Pull requests resolve the caller-facing "vhost#app" name, derive candidate
// URLs from the matching origin rule (or use the explicit URL), pick the
// provider advertising the URL scheme, and issue the pull. The rule that
// caused a pull becomes the owner of the resulting stream when the media
// router reports it.
//
// Concurrency
//
// All public operations are safe for concurrent use, including from module
// callbacks. Reconciliation and application fan-out are serialized by an
// apply lock that lookups and name resolution never take, so module code
// running inside a fan-out may freely call name resolution and lookups. Module
// callbacks must not register or unregister modules from within a fan-out.
package orchestrator
