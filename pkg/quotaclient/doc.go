// Package quotaclient is the browser-side view of a user's daily AI prompt
// allowance, usable from any Go front end or test harness.
//
// A Client talks to the two prompt endpoints. A Cache sits on top of it and
// keeps an instantly readable remaining count that is optimistically
// decremented when an AI action starts and replaced by the server's value
// once the action has been charged:
//
//	c := quotaclient.NewCache(quotaclient.New("https://mail.example.com",
//		quotaclient.WithToken(accessToken)))
//	_ = c.Load(ctx)
//	err := c.Track(ctx, func(ctx context.Context) error {
//		return streamCompletion(ctx, prompt)
//	})
//	if errors.Is(err, quotaclient.ErrLimitReached) {
//		showDailyLimitNotice()
//	}
//
// The Cache is an advisory gate. The server's consume endpoint is the only
// enforcement point.
package quotaclient
