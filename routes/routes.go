package routes

import (
	"tresorerie/controllers"
	"tresorerie/middleware"

	"github.com/gin-gonic/gin"
)

func InitializeRoutes(router *gin.Engine) {
	router.POST("/login", controllers.Login)

	// Admins validate orders, proformas and funding requests.
	admin := router.Group("/admin")
	admin.Use(middleware.AuthMiddleware("admin"))
	{
		admin.POST("/users", controllers.CreateUser)

		admin.POST("/commandes", controllers.CreateOrder)
		admin.GET("/commandes", controllers.GetAllOrders)
		admin.GET("/commandes/:id", controllers.GetOrder)
		admin.PUT("/commandes/:id/validate", controllers.ValidateOrder)
		admin.PUT("/commandes/:id/reject", controllers.RejectOrder)
		admin.POST("/commandes/:id/proformas", controllers.AddProforma)
		admin.PUT("/commandes/:id/proformas/:index/validate", controllers.ValidateProforma)
		admin.DELETE("/commandes/:id", controllers.DeleteOrder)

		admin.POST("/paiements", controllers.CreatePaymentRequest)
		admin.GET("/paiements", controllers.GetAllPaymentRequests)
		admin.GET("/paiements/:id", controllers.GetPaymentRequest)
		admin.PUT("/paiements/:id/validate", controllers.ValidatePaymentRequest)
		admin.PUT("/paiements/:id/reject", controllers.RejectPaymentRequest)

		admin.POST("/caisses", controllers.CreateCaisse)
		admin.PUT("/caisses/:id/funding/:requestId/preapprove", controllers.PreApproveFunding)
		admin.PUT("/caisses/:id/funding/:requestId/approve", controllers.ApproveFunding)
		admin.PUT("/caisses/:id/funding/:requestId/reject", controllers.RejectFunding)
		admin.PUT("/caisses/:id/transfers/:transferId/approve", controllers.ApproveTransfer)
		admin.PUT("/caisses/:id/transfers/:transferId/reject", controllers.RejectTransfer)
	}

	// Finance records payments and manages the caisses day to day.
	finance := router.Group("/finance")
	finance.Use(middleware.AuthMiddleware("finance"))
	{
		finance.GET("/commandes", controllers.GetAllOrders)
		finance.GET("/commandes/:id", controllers.GetOrder)
		finance.POST("/commandes/:id/payments", controllers.RecordOrderPayment)
		finance.PUT("/commandes/:id/payments/:paymentId", controllers.ModifyOrderPayment)

		finance.GET("/paiements", controllers.GetAllPaymentRequests)
		finance.GET("/paiements/:id", controllers.GetPaymentRequest)
		finance.POST("/paiements/:id/payments", controllers.RecordRequestPayment)

		finance.GET("/caisses", controllers.GetAllCaisses)
		finance.GET("/caisses/:id", controllers.GetCaisse)
		finance.GET("/caisses/:id/transactions", controllers.GetCaisseTransactions)
		finance.POST("/caisses/:id/disburse", controllers.DisburseFromCaisse)
		finance.POST("/caisses/:id/funding", controllers.SubmitFundingRequest)
		finance.GET("/caisses/:id/funding", controllers.GetCaisseFundingRequests)
		finance.PUT("/caisses/:id/funding/:requestId/correct", controllers.CorrectFunding)
		finance.POST("/caisses/:id/transfers", controllers.SubmitTransfer)
		finance.GET("/caisses/:id/transfers", controllers.GetCaisseTransfers)
	}
}
