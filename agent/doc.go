// Package agent connects the pipeline to remote analytical services.
//
// [Client] turns each agent endpoint into a task.Func, so a remote
// forecasting or simulation service plugs into the task registry like a
// local function. [Handler] is the server side: it exposes a task registry
// over the same protocol.
//
// The protocol is one POST per task invocation at {base}/{task}. Bodies are
// JSON or MessagePack, chosen by Content-Type and Accept; both codecs use
// the json field names of the task input and output types. Non-2xx answers
// carry {"error": "..."} and surface as [*RemoteError].
package agent
