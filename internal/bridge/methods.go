package bridge

// Native method names understood by the OneSignalPush module.
const (
	MethodInit                      = "init"
	MethodLogin                     = "login"
	MethodLogout                    = "logout"
	MethodSetPrivacyConsentRequired = "setPrivacyConsentRequired"
	MethodSetPrivacyConsentGiven    = "setPrivacyConsentGiven"

	MethodAddPermissionObserver               = "addPermissionObserver"
	MethodAddNotificationClickListener        = "addNotificationClickListener"
	MethodAddForegroundLifecycleListener      = "addForegroundLifecycleListener"
	MethodProceedWithWillDisplay              = "proceedWithWillDisplay"
	MethodPreventDefault                      = "preventDefault"
	MethodDisplayNotification                 = "displayNotification"
	MethodGetPermissionInternal               = "getPermissionInternal"
	MethodPermissionNative                    = "permissionNative"
	MethodRequestPermission                   = "requestPermission"
	MethodCanRequestPermission                = "canRequestPermission"
	MethodRegisterForProvisionalAuthorization = "registerForProvisionalAuthorization"
	MethodClearAllNotifications               = "clearAllNotifications"
	MethodRemoveNotification                  = "removeNotification"
	MethodRemoveGroupedNotifications          = "removeGroupedNotifications"

	MethodSetInAppMessageClickHandler         = "setInAppMessageClickHandler"
	MethodSetOnWillDisplayInAppMessageHandler = "setOnWillDisplayInAppMessageHandler"
	MethodSetOnDidDisplayInAppMessageHandler  = "setOnDidDisplayInAppMessageHandler"
	MethodSetOnWillDismissInAppMessageHandler = "setOnWillDismissInAppMessageHandler"
	MethodSetOnDidDismissInAppMessageHandler  = "setOnDidDismissInAppMessageHandler"
	MethodAddTriggers                         = "addTriggers"
	MethodRemoveTriggers                      = "removeTriggers"
	MethodClearTriggers                       = "clearTriggers"
	MethodSetPaused                           = "setPaused"
	MethodIsPaused                            = "isPaused"

	MethodSetLanguage          = "setLanguage"
	MethodAddAliases           = "addAliases"
	MethodRemoveAliases        = "removeAliases"
	MethodAddEmail             = "addEmail"
	MethodRemoveEmail          = "removeEmail"
	MethodAddSms               = "addSms"
	MethodRemoveSms            = "removeSms"
	MethodAddTags              = "addTags"
	MethodRemoveTags           = "removeTags"
	MethodGetTags              = "getTags"
	MethodAddUserStateObserver = "addUserStateObserver"
	MethodGetOnesignalID       = "getOnesignalId"
	MethodGetExternalID        = "getExternalId"

	MethodGetPushSubscriptionID       = "getPushSubscriptionId"
	MethodGetPushSubscriptionToken    = "getPushSubscriptionToken"
	MethodGetPushSubscriptionOptedIn  = "getPushSubscriptionOptedIn"
	MethodAddPushSubscriptionObserver = "addPushSubscriptionObserver"
	MethodOptInPushSubscription       = "optInPushSubscription"
	MethodOptOutPushSubscription      = "optOutPushSubscription"

	MethodAddOutcome          = "addOutcome"
	MethodAddUniqueOutcome    = "addUniqueOutcome"
	MethodAddOutcomeWithValue = "addOutcomeWithValue"

	MethodRequestLocationPermission = "requestLocationPermission"
	MethodSetLocationShared         = "setLocationShared"
	MethodIsLocationShared          = "isLocationShared"

	MethodEnterLiveActivity        = "enterLiveActivity"
	MethodExitLiveActivity         = "exitLiveActivity"
	MethodSetPushToStartToken      = "setPushToStartToken"
	MethodRemovePushToStartToken   = "removePushToStartToken"
	MethodSetupDefaultLiveActivity = "setupDefaultLiveActivity"
	MethodStartDefaultLiveActivity = "startDefaultLiveActivity"

	MethodSetLogLevel   = "setLogLevel"
	MethodSetAlertLevel = "setAlertLevel"

	// Device state model kept by older native builds.
	MethodGetDeviceState               = "getDeviceState"
	MethodAddSubscriptionObserver      = "addSubscriptionObserver"
	MethodAddEmailSubscriptionObserver = "addEmailSubscriptionObserver"
	MethodAddSMSSubscriptionObserver   = "addSMSSubscriptionObserver"
)
