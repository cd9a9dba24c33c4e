package main

// visitorTokenSessionKey stores the token that groups the investigations of one browser.
const visitorTokenSessionKey = "visitorToken"
