package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/church-music-api/internal/middleware"
)

// Handlers groups the handlers mounted by Register.
type Handlers struct {
	Events      *EventHandler
	Assignments *AssignmentHandler
	Invitations *InvitationHandler
	Groups      *GroupHandler
	Calendar    *CalendarHandler
	Activity    *ActivityHandler
	Musicians   *MusicianHandler
}

// Register mounts the API under group. auth must place validated claims on
// the context; invitation acceptance is the only unauthenticated route.
func Register(group *gin.RouterGroup, h Handlers, auth gin.HandlerFunc) {
	group.POST("/invitations/accept", h.Invitations.Accept)

	secured := group.Group("", auth)
	lead := middleware.RequireLeadership()

	secured.GET("/events", h.Events.List)
	secured.GET("/events.ics", h.Calendar.Feed)
	secured.GET("/events/:id", h.Events.Get)
	secured.POST("/events", lead, h.Events.Create)
	secured.PUT("/events/:id", lead, h.Events.Update)
	secured.DELETE("/events/:id", lead, h.Events.Delete)

	secured.POST("/events/:id/groups", lead, h.Assignments.AssignGroup)
	secured.DELETE("/events/:id/groups/:groupId", lead, h.Assignments.RemoveGroup)
	secured.GET("/events/:id/eligible", lead, h.Assignments.Eligible)
	secured.GET("/events/:id/occupancy", h.Assignments.Occupancy)
	secured.POST("/assignments", lead, h.Assignments.Open)
	secured.PUT("/assignments/:id", h.Assignments.Update)
	secured.POST("/assignments/:id/signup", h.Assignments.Signup)

	secured.GET("/invitations", lead, h.Invitations.List)
	secured.POST("/invitations", lead, h.Invitations.Create)
	secured.POST("/invitations/import", lead, h.Invitations.Import)
	secured.POST("/invitations/:id/resend", lead, h.Invitations.Resend)
	secured.DELETE("/invitations/:id", lead, h.Invitations.Revoke)

	secured.GET("/groups", h.Groups.List)
	secured.GET("/groups/:id", h.Groups.Get)
	secured.POST("/groups", lead, h.Groups.Create)
	secured.DELETE("/groups/:id", lead, h.Groups.Delete)
	secured.POST("/groups/:id/members", lead, h.Groups.AddMember)
	secured.DELETE("/groups/:id/members/:userId", lead, h.Groups.RemoveMember)

	secured.GET("/musicians", h.Musicians.List)
	secured.GET("/musicians/:id", h.Musicians.Get)

	secured.GET("/activity", lead, h.Activity.Recent)
}
