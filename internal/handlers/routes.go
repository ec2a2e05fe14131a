package handlers

import (
	"github.com/dinewithlocals/backend/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes mounts /health, /metrics and the /api tree on r. It also
// installs the websocket chat handler on d.Hub.
func SetupRoutes(r *gin.Engine, d *Deps) {
	db := d.DB
	cfg := d.Config
	secret := cfg.JWTSecret

	finder := NewNearbyFinder(db, d.Cache, d.Metrics)
	messenger := NewChatMessenger(db, d.Hub, d.Notifier)
	if d.Hub != nil {
		d.Hub.SetInboundHandler(NewInboundHandler(db, messenger))
	}
	matchSettings := MatchSettings{FeePercent: cfg.PlatformFeePercent}

	verify := d.VerifyGoogleToken
	if verify == nil {
		verify = VerifyGoogleIDToken
	}

	r.GET("/health", Health(db, d.Hub))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		// Public routes
		auth := api.Group("/auth")
		if d.AuthLimiter != nil {
			auth.Use(d.AuthLimiter)
		}
		{
			auth.POST("/register", Register(db, secret))
			auth.POST("/login", Login(db, secret))
			auth.POST("/forgot-password", RequestPasswordReset(db, d.Mailer))
			auth.POST("/verify-otp", VerifyOTP(db))
			auth.POST("/reset-password", ResetPassword(db))
			if cfg.GoogleClientID != "" {
				auth.POST("/google", GoogleSignIn(db, secret, cfg.GoogleClientID, verify))
			}
			if d.GoogleOAuth != nil {
				auth.GET("/google/login", GoogleLogin(d.GoogleOAuth))
				auth.GET("/google/callback", GoogleCallback(db, d.GoogleOAuth, secret, cfg.FrontendURL))
			}
			auth.GET("/me", middleware.AuthMiddleware(secret), Me(db))
		}

		// WebSocket connection, token in the query string
		api.GET("/ws", middleware.AuthMiddleware(secret), WebSocketHandler(d.Hub))

		// Protected routes
		protected := api.Group("/")
		protected.Use(middleware.AuthMiddleware(secret))
		{
			users := protected.Group("/users")
			{
				users.GET("/me", Me(db))
				users.PUT("/me", UpdateProfile(db))
				users.POST("/me/avatar", UploadAvatar(db, d.Storage))
				users.POST("/me/fcm-token", RegisterFCMToken(db))
				users.DELETE("/me/fcm-token", RemoveFCMToken(db))
				users.GET("/:id", GetUserProfile(db))
				users.GET("/:id/reviews", UserReviews(db))
			}

			locations := protected.Group("/locations")
			{
				locations.POST("", CreateLocation(db))
				locations.GET("", SearchLocations(db))
				locations.GET("/:id", GetLocation(db))
			}

			listings := protected.Group("/listings")
			{
				listings.POST("", CreateListing(db, cfg.PaymentCurrency))
				listings.GET("", ListListings(db))
				listings.GET("/mine", MyListings(db))
				listings.GET("/:id", GetListing(db))
				listings.PUT("/:id", UpdateListing(db, d.Payments, d.Notifier))
				listings.DELETE("/:id", DeleteListing(db, d.Payments, d.Notifier))
				listings.POST("/:id/images", UploadListingImage(db, d.Storage))
				listings.GET("/:id/reviews", ListingReviews(db))
			}

			requests := protected.Group("/requests")
			{
				requests.POST("", CreateRequest(db))
				requests.GET("", ListRequests(db))
				requests.GET("/mine", MyRequests(db))
				requests.GET("/:id", GetRequest(db))
				requests.PUT("/:id", UpdateRequest(db))
				requests.DELETE("/:id", DeleteRequest(db, d.Payments, d.Notifier))
			}

			nearby := protected.Group("/nearby")
			{
				nearby.GET("", Nearby(finder))
				nearby.GET("/listings", NearbyListings(finder))
				nearby.GET("/requests", NearbyRequests(finder))
			}

			matches := protected.Group("/matches")
			{
				matches.POST("", CreateMatch(db, d.Payments, d.Notifier, d.Hub, matchSettings))
				matches.GET("", ListMatches(db))
				matches.GET("/pending", PendingMatches(db))
				matches.GET("/:id", GetMatch(db))
				matches.POST("/:id/approve", ApproveMatch(db, d.Payments, d.Notifier, d.Hub))
				matches.POST("/:id/reject", RejectMatch(db, d.Payments, d.Notifier, d.Hub))
				matches.POST("/:id/cancel", CancelMatch(db, d.Payments, d.Notifier, d.Hub))
			}

			chats := protected.Group("/chats")
			{
				chats.POST("", CreateChat(db))
				chats.GET("", ListChats(db))
				chats.GET("/:id", GetChat(db))
				chats.GET("/:id/messages", GetMessages(db))
				chats.POST("/:id/messages", SendMessage(messenger))
				chats.POST("/:id/participants", AddParticipant(db))
				chats.DELETE("/:id/participants/me", LeaveChat(db, d.Hub))
			}

			blogs := protected.Group("/blogs")
			{
				blogs.POST("", CreateBlog(db))
				blogs.GET("", ListBlogs(db))
				blogs.GET("/:id", GetBlog(db))
				blogs.PUT("/:id", UpdateBlog(db))
				blogs.DELETE("/:id", DeleteBlog(db))
				blogs.POST("/:id/like", LikeBlog(db, d.Notifier))
				blogs.DELETE("/:id/like", UnlikeBlog(db))
				blogs.GET("/:id/comments", ListComments(db))
				blogs.POST("/:id/comments", CreateComment(db, d.Notifier))
				blogs.POST("/:id/image", UploadBlogImage(db, d.Storage))
			}
			protected.DELETE("/comments/:id", DeleteComment(db))

			protected.POST("/reviews", CreateReview(db, d.Notifier))

			notifications := protected.Group("/notifications")
			{
				notifications.GET("", ListNotifications(db))
				notifications.GET("/unread-count", UnreadCount(db))
				notifications.PATCH("/read-all", MarkAllNotificationsRead(db))
				notifications.PATCH("/:id/read", MarkNotificationRead(db))
				notifications.DELETE("/:id", DeleteNotification(db))
				notifications.GET("/preferences", GetNotificationPreferences(db))
				notifications.PUT("/preferences", UpdateNotificationPreferences(db))
			}
		}
	}
}
