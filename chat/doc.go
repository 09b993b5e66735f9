// Package chat connects the bot to Twitch.
//
// Client joins the channel over IRC, turns PRIVMSG lines into bot chat
// messages and USERNOTICE lines (sub, resub, subgift, raid) into channel
// events, and carries the bot's outbound actions: text goes back over IRC,
// message deletion and timeouts go through Helix with the bot account's token.
// The connection is re-established with exponential backoff after a drop.
//
// Chatters and Editor adapt Helix to the bot's chatter list and category
// change collaborators. Followers polls the follower list and reports new
// follows; the first poll only seeds the known set.
//
// Credentials: the IRC login needs a user token with chat:read and chat:edit.
// Moderation calls need the bot account to be a moderator in the channel.
package chat
