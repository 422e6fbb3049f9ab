// Package logx is the structured logger shared by the bot and motionctl.
//
// Console lines are human readable with a short caller, the optional file
// sink writes rotated JSON, and the optional Telegram sink forwards warnings
// and errors to a chat at a limited rate. Service.Apply swaps sinks at runtime.
package logx
