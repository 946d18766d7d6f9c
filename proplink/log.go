package proplink

// Logging convention in this package:
//
// Info:
//     essential one-time/infrequent events. Silent on normal steady-state
//     operation. This includes:
//     - Start/Stop, Connect/Close
//     - reconnect attempts and give-up
// Warning:
//     recoverable but unexpected conditions. This includes:
//     - a recovered panic in a user callback
//     - a dropped notification on a full or disconnected subscriber
// Error:
//     not used; bind failures at startup are returned as errors from
//     Server.Start and Client.Open rather than logged.

const logTagServer = "proplink/server"
const logTagClient = "proplink/client"
