package wpp

import (
	"context"
	"encoding/json"
)

// Script names one of the fixed page operations.
type Script string

const (
	ScriptSendText           Script = "send-text"
	ScriptSendFile           Script = "send-file"
	ScriptSendLocation       Script = "send-location"
	ScriptSendVcard          Script = "send-vcard"
	ScriptSendList           Script = "send-list"
	ScriptSendMessageOptions Script = "send-message-options"
	ScriptMarkRead           Script = "mark-read"
	ScriptMarkComposing      Script = "mark-composing"
	ScriptMarkPaused         Script = "mark-paused"
	ScriptMarkAvailable      Script = "mark-available"
	ScriptFetchByID          Script = "fetch-by-id"
	ScriptForward            Script = "forward"
	ScriptSetChatState       Script = "set-chat-state"
)

// Executor evaluates a script inside the chat page and returns what the
// script resolved with, as JSON. A nil result means the script returned
// undefined. An error means the page threw before producing a result.
type Executor interface {
	Evaluate(ctx context.Context, script Script, arg any) (json.RawMessage, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, script Script, arg any) (json.RawMessage, error)

func (f ExecutorFunc) Evaluate(ctx context.Context, script Script, arg any) (json.RawMessage, error) {
	return f(ctx, script, arg)
}

// Source returns the function expression evaluated in the page. Every
// function takes exactly one argument and only calls into the wa-js WPP
// global.
func (s Script) Source() string {
	return scriptSources[s]
}

// Sends that resolve to {ack, id, sendMsgResult} await the nested promise
// themselves and turn a rejection into an object carrying `message`.
const reshapeResult = `
  return {
    ack: result.ack,
    id: result.id,
    sendMsgResult: await result.sendMsgResult,
    error: result.message,
  };`

var scriptSources = map[Script]string{
	ScriptSendText: `async ({ to, content, options }) => {
  const result = await WPP.chat.sendTextMessage(to, content, {
    ...options,
    waitForAck: true,
  }).catch((e) => e);` + reshapeResult + `
}`,

	ScriptSendFile: `async ({ to, base64, options }) => {
  const result = await WPP.chat.sendFileMessage(to, base64, {
    ...options,
    waitForAck: true,
  }).catch((e) => e);` + reshapeResult + `
}`,

	ScriptSendLocation: `async ({ to, options }) => {
  const result = await WPP.chat.sendLocationMessage(to, options).catch((e) => e);` + reshapeResult + `
}`,

	ScriptSendVcard: `async ({ to, contactsId, name }) => {
  const result = await WPP.chat.sendVCardContactMessage(to, {
    id: contactsId,
    name: name,
  }).catch((e) => e);` + reshapeResult + `
}`,

	ScriptSendList: `({ to, options }) => WPP.chat.sendListMessage(to, options)`,

	ScriptSendMessageOptions: `async ({ chat, content, options }) => {
  const result = await WPP.chat.sendTextMessage(chat, content, options).catch((e) => e);
  return result && result.id ? result.id : { error: String(result && result.message || result) };
}`,

	ScriptFetchByID: `async (messageId) => {
  const msg = await WPP.chat.getMessageById(messageId).catch(() => null);
  if (!msg) {
    return null;
  }
  return JSON.parse(JSON.stringify(typeof msg.serialize === 'function' ? msg.serialize() : msg));
}`,

	ScriptForward: `async ({ to, messages, skipMyMessages }) => {
  const results = [];
  for (const id of messages) {
    const msg = await WPP.chat.getMessageById(id).catch(() => null);
    if (!msg) {
      results.push({ id, error: 'message not found' });
      continue;
    }
    if (skipMyMessages && msg.id && msg.id.fromMe) {
      continue;
    }
    results.push(await WPP.chat.forwardMessage(to, id).then(
      () => ({ id, forwarded: true }),
      (e) => ({ id, error: String(e && e.message || e) }),
    ));
  }
  return results;
}`,

	ScriptMarkRead:      `(chatId) => WPP.chat.markIsRead(chatId)`,
	ScriptMarkComposing: `({ to, duration }) => WPP.chat.markIsComposing(to, duration)`,
	ScriptMarkPaused:    `(to) => WPP.chat.markIsPaused(to)`,
	ScriptMarkAvailable: `(online) => WPP.conn.markAvailable(online)`,

	ScriptSetChatState: `({ chatState, chatId }) => {
  const mark = [WPP.chat.markIsComposing, WPP.chat.markIsRecording, WPP.chat.markIsPaused][chatState];
  return mark(chatId);
}`,
}
