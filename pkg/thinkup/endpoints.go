package thinkup

import (
	"context"
	"fmt"
)

// Call types understood by the ThinkUp post API.
const (
	CallUserPosts              = "user_posts"
	CallUserPostsInRange       = "user_posts_in_range"
	CallUserQuestions          = "user_questions"
	CallUserReplies            = "user_replies"
	CallUserMentions           = "user_mentions"
	CallUserPostsMostRepliedTo = "user_posts_most_replied_to"
	CallUserPostsMostRetweeted = "user_posts_most_retweeted"
	CallPost                   = "post"
	CallPostReplies            = "post_replies"
	CallPostRetweets           = "post_retweets"
	CallRelatedPosts           = "related_posts"
)

// Required argument names.
const (
	ArgUsername = "username"
	ArgPostID   = "post_id"
	ArgFrom     = "from"
	ArgTo       = "to"
)

// Endpoint describes one call type and the arguments it requires, in positional order.
type Endpoint struct {
	Type     string   `json:"type" yaml:"type"`
	Required []string `json:"required" yaml:"required"`
}

var catalog = []Endpoint{
	{Type: CallUserPosts, Required: []string{ArgUsername}},
	{Type: CallUserPostsInRange, Required: []string{ArgUsername, ArgFrom, ArgTo}},
	{Type: CallUserQuestions, Required: []string{ArgUsername}},
	{Type: CallUserReplies, Required: []string{ArgUsername}},
	{Type: CallUserMentions, Required: []string{ArgUsername}},
	{Type: CallUserPostsMostRepliedTo, Required: []string{ArgUsername}},
	{Type: CallUserPostsMostRetweeted, Required: []string{ArgUsername}},
	{Type: CallPost, Required: []string{ArgPostID}},
	{Type: CallPostReplies, Required: []string{ArgPostID}},
	{Type: CallPostRetweets, Required: []string{ArgPostID}},
	{Type: CallRelatedPosts, Required: []string{ArgPostID}},
}

// Endpoints returns a copy of the call catalog.
func Endpoints() []Endpoint {
	out := make([]Endpoint, len(catalog))
	for i, ep := range catalog {
		out[i] = Endpoint{Type: ep.Type, Required: append([]string(nil), ep.Required...)}
	}
	return out
}

// LookupEndpoint finds the catalog entry for callType.
func LookupEndpoint(callType string) (Endpoint, bool) {
	for _, ep := range catalog {
		if ep.Type == callType {
			return Endpoint{Type: ep.Type, Required: append([]string(nil), ep.Required...)}, true
		}
	}
	return Endpoint{}, false
}

// Invoke dispatches callType with positional values bound to its required arguments.
func (c *Client) Invoke(ctx context.Context, callType string, positional []string, optional Args) (Result, error) {
	ep, ok := LookupEndpoint(callType)
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownCallType, callType)
	}
	if len(positional) != len(ep.Required) {
		return Result{}, fmt.Errorf("%w: %s takes %d, got %d", ErrArgumentCount, callType, len(ep.Required), len(positional))
	}

	required := make(Args, len(ep.Required))
	for i, key := range ep.Required {
		required[key] = positional[i]
	}
	return c.Call(ctx, ep.Type, required, optional)
}

// UserPosts gets posts from a specific user.
func (c *Client) UserPosts(ctx context.Context, username string, optional Args) (Result, error) {
	return c.Call(ctx, CallUserPosts, Args{ArgUsername: username}, optional)
}

// UserPostsInRange gets posts from a specific user published between from and to.
func (c *Client) UserPostsInRange(ctx context.Context, username, from, to string, optional Args) (Result, error) {
	return c.Call(ctx, CallUserPostsInRange, Args{ArgUsername: username, ArgFrom: from, ArgTo: to}, optional)
}

// UserQuestions gets posts from a specific user that are questions.
func (c *Client) UserQuestions(ctx context.Context, username string, optional Args) (Result, error) {
	return c.Call(ctx, CallUserQuestions, Args{ArgUsername: username}, optional)
}

// UserReplies gets posts that are replies to a specific user.
func (c *Client) UserReplies(ctx context.Context, username string, optional Args) (Result, error) {
	return c.Call(ctx, CallUserReplies, Args{ArgUsername: username}, optional)
}

// UserMentions gets posts that mention a specific user.
func (c *Client) UserMentions(ctx context.Context, username string, optional Args) (Result, error) {
	return c.Call(ctx, CallUserMentions, Args{ArgUsername: username}, optional)
}

// UserPostsMostRepliedTo gets a user's most replied-to posts.
func (c *Client) UserPostsMostRepliedTo(ctx context.Context, username string, optional Args) (Result, error) {
	return c.Call(ctx, CallUserPostsMostRepliedTo, Args{ArgUsername: username}, optional)
}

// UserPostsMostRetweeted gets a user's most retweeted posts.
func (c *Client) UserPostsMostRetweeted(ctx context.Context, username string, optional Args) (Result, error) {
	return c.Call(ctx, CallUserPostsMostRetweeted, Args{ArgUsername: username}, optional)
}

// Post gets a single post. The payload is one object rather than a list.
func (c *Client) Post(ctx context.Context, postID string, optional Args) (Result, error) {
	return c.Call(ctx, CallPost, Args{ArgPostID: postID}, optional)
}

// PostReplies gets replies to a specific post.
func (c *Client) PostReplies(ctx context.Context, postID string, optional Args) (Result, error) {
	return c.Call(ctx, CallPostReplies, Args{ArgPostID: postID}, optional)
}

// PostRetweets gets retweets of a specific post.
func (c *Client) PostRetweets(ctx context.Context, postID string, optional Args) (Result, error) {
	return c.Call(ctx, CallPostRetweets, Args{ArgPostID: postID}, optional)
}

// RelatedPosts gets posts related to a specific post.
func (c *Client) RelatedPosts(ctx context.Context, postID string, optional Args) (Result, error) {
	return c.Call(ctx, CallRelatedPosts, Args{ArgPostID: postID}, optional)
}
