package handlers

import (
	"blogsphere/internal/services"

	"github.com/gin-gonic/gin"
)

type CommentHandler struct {
	comments *services.CommentService
}

func NewCommentHandler(comments *services.CommentService) *CommentHandler {
	return &CommentHandler{comments: comments}
}

type addCommentRequest struct {
	ID         string `json:"_id"`
	BlogID     string `json:"blog_id"` // _id 的别名
	Comment    string `json:"comment"`
	BlogAuthor string `json:"blog_author"`
	ReplyingTo string `json:"replying_to"`
}

// Add 发表评论或回复
func (h *CommentHandler) Add(c *gin.Context) {
	var req addCommentRequest
	if !bindJSON(c, &req) {
		return
	}
	blogID := req.ID
	if blogID == "" {
		blogID = req.BlogID
	}
	userID := currentUser(c)
	comment, err := h.comments.AddComment(c.Request.Context(), services.AddCommentInput{
		BlogID:      blogID,
		BlogAuthor:  req.BlogAuthor,
		CommenterID: userID,
		Text:        req.Comment,
		ReplyingTo:  req.ReplyingTo,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, gin.H{
		"comment":     comment.Comment,
		"commentedAt": comment.CommentedAt,
		"_id":         comment.ID,
		"user_id":     userID,
		"children":    comment.Children,
	})
}

type listCommentsRequest struct {
	BlogID string `json:"blog_id"`
	Skip   int    `json:"skip"`
}

// List 根评论分页，直接返回数组
func (h *CommentHandler) List(c *gin.Context) {
	var req listCommentsRequest
	if !bindJSON(c, &req) {
		return
	}
	comments, err := h.comments.ListRootComments(c.Request.Context(), req.BlogID, req.Skip)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, comments)
}

type repliesRequest struct {
	ID   string `json:"_id"`
	Skip int    `json:"skip"`
}

func (h *CommentHandler) Replies(c *gin.Context) {
	var req repliesRequest
	if !bindJSON(c, &req) {
		return
	}
	replies, err := h.comments.ListReplies(c.Request.Context(), req.ID, req.Skip)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, gin.H{"replies": replies})
}

type deleteCommentRequest struct {
	ID string `json:"_id"`
}

// Delete 删除评论及其全部回复
func (h *CommentHandler) Delete(c *gin.Context) {
	var req deleteCommentRequest
	if !bindJSON(c, &req) {
		return
	}
	if _, err := h.comments.DeleteSubtree(c.Request.Context(), req.ID, currentUser(c)); err != nil {
		respondError(c, err)
		return
	}
	done(c)
}
