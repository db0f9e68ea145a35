package main

import "medicare/internal/app"

// @title                       MediCare Clinic API
// @version                     1.0
// @description                 Email OTP login and per-doctor patient records.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	app.Run()
}
